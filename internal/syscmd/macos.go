package syscmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"howett.net/plist"
)

// Hostname returns the machine hostname, "unknown" on failure.
func (r *Runner) Hostname(ctx context.Context) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	res := r.Run(ctx, 10*time.Second, "hostname")
	if res.OK() && res.Stdout != "" {
		return res.Stdout
	}
	return "unknown"
}

// OSVersion returns the macOS product version string.
func (r *Runner) OSVersion(ctx context.Context) string {
	res := r.Run(ctx, 10*time.Second, "sw_vers", "-productVersion")
	if res.OK() && res.Stdout != "" {
		return "macOS " + res.Stdout
	}
	return "macOS"
}

// ListLocalSnapshots lists APFS local snapshots for a volume via tmutil,
// retrying with privileges and finally falling back to diskutil.
func (r *Runner) ListLocalSnapshots(ctx context.Context, volume string) []string {
	if snaps := parseSnapshotList(r.Run(ctx, 30*time.Second, "tmutil", "listlocalsnapshots", volume)); len(snaps) > 0 {
		return snaps
	}
	if snaps := parseSnapshotList(r.RunPrivileged(ctx, 30*time.Second, "tmutil", "listlocalsnapshots", volume)); len(snaps) > 0 {
		return snaps
	}

	var snaps []string
	res := r.Run(ctx, 30*time.Second, "diskutil", "apfs", "listSnapshots", "/")
	if res.OK() {
		for _, line := range strings.Split(res.Stdout, "\n") {
			line = strings.TrimSpace(line)
			if !strings.Contains(line, "com.apple.") {
				continue
			}
			if name, found := strings.CutPrefix(line, "Name:"); found {
				snaps = append(snaps, strings.TrimSpace(name))
			} else if strings.HasPrefix(line, "com.apple.") {
				snaps = append(snaps, line)
			}
		}
	}
	return snaps
}

func parseSnapshotList(res Result) []string {
	if !res.OK() || res.Stdout == "" {
		return nil
	}
	var snaps []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "com.apple."):
			snaps = append(snaps, line)
		case strings.Contains(line, ".") && !strings.HasPrefix(line, "Snapshots"):
			snaps = append(snaps, line)
		}
	}
	return snaps
}

// MountSnapshot mounts an APFS snapshot read-only at mountPoint.
func (r *Runner) MountSnapshot(ctx context.Context, snapshot, volume, mountPoint string) error {
	res := r.RunPrivileged(ctx, 60*time.Second, "mount_apfs", "-o", "rdonly", "-s", snapshot, volume, mountPoint)
	if !res.OK() {
		msg := res.Stderr
		if msg == "" {
			msg = res.Stdout
		}
		return fmt.Errorf("mount_apfs %s: %s", snapshot, msg)
	}
	return nil
}

// UnmountSnapshot unmounts a snapshot mount point.
func (r *Runner) UnmountSnapshot(ctx context.Context, mountPoint string) error {
	res := r.RunPrivileged(ctx, 30*time.Second, "umount", mountPoint)
	if !res.OK() {
		msg := res.Stderr
		if msg == "" {
			msg = res.Stdout
		}
		return fmt.Errorf("umount %s: %s", mountPoint, msg)
	}
	return nil
}

// TMDestination returns the Time Machine backup destination mount point, or
// "" when none is configured.
func (r *Runner) TMDestination(ctx context.Context) string {
	res := r.Run(ctx, 30*time.Second, "tmutil", "destinationinfo")
	if !res.OK() {
		return ""
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "Mount Point") {
			if _, after, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(after)
			}
		}
	}
	return ""
}

// ListTMBackups returns the paths of completed Time Machine backups.
func (r *Runner) ListTMBackups(ctx context.Context) []string {
	res := r.Run(ctx, 30*time.Second, "tmutil", "listbackups")
	if !res.OK() || res.Stdout == "" {
		return nil
	}
	var backups []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			backups = append(backups, line)
		}
	}
	return backups
}

// VolumeStat is one row of the volume listing.
type VolumeStat struct {
	Device     string
	MountPoint string
}

// ListVolumes lists mounted volumes via df.
func (r *Runner) ListVolumes(ctx context.Context) []VolumeStat {
	res := r.Run(ctx, 15*time.Second, "df", "-h")
	if !res.OK() {
		return nil
	}
	lines := strings.Split(res.Stdout, "\n")
	if len(lines) < 2 {
		return nil
	}

	var vols []VolumeStat
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		vols = append(vols, VolumeStat{
			Device:     fields[0],
			MountPoint: fields[len(fields)-1],
		})
	}
	return vols
}

// apfsPlist mirrors the parts of `diskutil apfs list -plist` output needed to
// locate the physical store backing the data volume.
type apfsPlist struct {
	Containers []struct {
		PhysicalStores []struct {
			DeviceIdentifier string `plist:"DeviceIdentifier"`
		} `plist:"PhysicalStores"`
		Volumes []struct {
			Name  string   `plist:"Name"`
			Roles []string `plist:"Roles"`
		} `plist:"Volumes"`
	} `plist:"Containers"`
}

// DataVolumeDevice finds the physical disk device backing the APFS container
// that holds the user data volume. Synthesized APFS volumes are "Resource
// busy" while mounted; carving needs the physical store (e.g. /dev/disk0s2).
func (r *Runner) DataVolumeDevice(ctx context.Context) string {
	res := r.Run(ctx, 10*time.Second, "diskutil", "apfs", "list", "-plist")
	if res.OK() && res.Stdout != "" {
		var parsed apfsPlist
		if _, err := plist.Unmarshal([]byte(res.Stdout), &parsed); err == nil {
			for _, container := range parsed.Containers {
				if !containerHasDataVolume(container.Volumes) {
					continue
				}
				for _, store := range container.PhysicalStores {
					if store.DeviceIdentifier != "" {
						return "/dev/" + store.DeviceIdentifier
					}
				}
			}
		}
	}

	// Fallback: scrape the human-readable listing for the APFS container
	// partition on the internal physical disk.
	res = r.Run(ctx, 10*time.Second, "diskutil", "list")
	if !res.OK() {
		return ""
	}
	sawPhysical := false
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "internal, physical") {
			sawPhysical = true
			continue
		}
		if sawPhysical && strings.Contains(line, "Apple_APFS") && strings.Contains(line, "Container") {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				return "/dev/" + fields[len(fields)-1]
			}
		}
	}
	return ""
}

func containerHasDataVolume(volumes []struct {
	Name  string   `plist:"Name"`
	Roles []string `plist:"Roles"`
}) bool {
	for _, vol := range volumes {
		for _, role := range vol.Roles {
			if role == "Data" {
				return true
			}
		}
		if strings.HasSuffix(vol.Name, "- Data") {
			return true
		}
	}
	return false
}

// Getxattr reads an extended attribute from a file, returning nil when the
// attribute is absent or unreadable.
func Getxattr(path, attr string) []byte {
	size, err := unix.Getxattr(path, attr, nil)
	if err != nil || size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	n, err := unix.Getxattr(path, attr, buf)
	if err != nil || n <= 0 {
		return nil
	}
	return buf[:n]
}
