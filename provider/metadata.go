package provider

import (
	"os"
	"syscall"
)

// UnixFileInfo extends FileInfo with ownership and permission bits so a copy
// can carry them to the destination.
type UnixFileInfo interface {
	FileInfo
	UID() uint32
	GID() uint32
	Mode() os.FileMode
}

type unixFileInfo struct {
	FileInfo
	uid  uint32
	gid  uint32
	mode os.FileMode
}

func (u *unixFileInfo) UID() uint32       { return u.uid }
func (u *unixFileInfo) GID() uint32       { return u.gid }
func (u *unixFileInfo) Mode() os.FileMode { return u.mode }

// WrapOSFileInfo converts an os.FileInfo into a FileInfo. On unix the result
// also implements UnixFileInfo.
func WrapOSFileInfo(info os.FileInfo) FileInfo {
	base := &staticFileInfo{
		name:    info.Name(),
		size:    info.Size(),
		isDir:   info.IsDir(),
		modTime: info.ModTime(),
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return base
	}
	return &unixFileInfo{
		FileInfo: base,
		uid:      st.Uid,
		gid:      st.Gid,
		mode:     info.Mode().Perm(),
	}
}

// NewUnixFileInfo creates a UnixFileInfo from raw values.
func NewUnixFileInfo(info FileInfo, uid, gid uint32, mode os.FileMode) UnixFileInfo {
	return &unixFileInfo{FileInfo: info, uid: uid, gid: gid, mode: mode}
}

// IDMapping maps source user or group ids to destination ids.
type IDMapping map[uint32]uint32

// MetadataMapper translates ownership between source and destination hosts.
type MetadataMapper struct {
	uids IDMapping
	gids IDMapping
	// preserveUnmapped keeps ids that have no explicit mapping.
	preserveUnmapped bool
}

// MetadataMapperOption configures a MetadataMapper.
type MetadataMapperOption func(*MetadataMapper)

// WithUIDMapping sets the uid translation table.
func WithUIDMapping(mapping IDMapping) MetadataMapperOption {
	return func(m *MetadataMapper) { m.uids = mapping }
}

// WithGIDMapping sets the gid translation table.
func WithGIDMapping(mapping IDMapping) MetadataMapperOption {
	return func(m *MetadataMapper) { m.gids = mapping }
}

// WithPreserveUnmapped controls whether ids without a mapping are kept as-is.
func WithPreserveUnmapped(preserve bool) MetadataMapperOption {
	return func(m *MetadataMapper) { m.preserveUnmapped = preserve }
}

// NewMetadataMapper creates a MetadataMapper. By default unmapped ids are preserved.
func NewMetadataMapper(opts ...MetadataMapperOption) *MetadataMapper {
	m := &MetadataMapper{
		uids:             make(IDMapping),
		gids:             make(IDMapping),
		preserveUnmapped: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MetadataMapper) lookup(table IDMapping, id uint32) (uint32, bool) {
	if mapped, ok := table[id]; ok {
		return mapped, true
	}
	if m.preserveUnmapped {
		return id, true
	}
	return 0, false
}

// MapUID returns the destination uid for a source uid.
func (m *MetadataMapper) MapUID(uid uint32) (uint32, bool) { return m.lookup(m.uids, uid) }

// MapGID returns the destination gid for a source gid.
func (m *MetadataMapper) MapGID(gid uint32) (uint32, bool) { return m.lookup(m.gids, gid) }

// ApplyMetadata applies permissions and mapped ownership to path.
// Infos without unix metadata are ignored.
func ApplyMetadata(path string, info FileInfo, mapper *MetadataMapper) error {
	unixInfo, ok := info.(UnixFileInfo)
	if !ok {
		return nil
	}

	if unixInfo.Mode() != 0 {
		if err := os.Chmod(path, unixInfo.Mode()); err != nil {
			return err
		}
	}

	if mapper == nil {
		return nil
	}
	uid, uidOK := mapper.MapUID(unixInfo.UID())
	gid, gidOK := mapper.MapGID(unixInfo.GID())
	if !uidOK || !gidOK {
		return nil
	}
	return os.Chown(path, int(uid), int(gid))
}
