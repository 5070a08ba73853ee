package namespace

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
)

// edgeKey is the lookup index key: an entry name within a parent directory.
// The parent generation is deliberately not part of the key.
type edgeKey struct {
	parent InodeID
	name   string
}

// edgeKeys hashes lookup index keys. The bucket index folds the parent
// inode and device into the alphabet hash of the name; the ordering value
// xors them into the name's ordering hash.
type edgeKeys struct {
	order      hashtable.OrderFunc
	maxNameLen int
}

func (k edgeKeys) Index(g hashtable.Geometry, key edgeKey) uint32 {
	size := uint64(g.IndexSize)

	h := uint64(hashtable.AlphabetIndex(g, key.name))
	h = (h + key.parent.Inode) % size
	h = (h ^ key.parent.Device) % size
	return uint32(h)
}

func (k edgeKeys) Order(_ hashtable.Geometry, key edgeKey) uint64 {
	return k.order(key.name) ^ key.parent.Inode ^ key.parent.Device
}

func (edgeKeys) Equal(a, b edgeKey) bool {
	return a == b
}

func (edgeKeys) Format(key edgeKey) string {
	return fmt.Sprintf("parent:%s, name:%s", key.parent, key.name)
}

func (k edgeKeys) Valid(key edgeKey) bool {
	return validName(key.name, k.maxNameLen) == nil
}

// inodeKeys hashes node index keys.
type inodeKeys struct {
	// order, when set, replaces the classic inode ordering value with a hash
	// of the 16-byte big-endian (device, inode) encoding.
	order hashtable.OrderFunc
}

func (inodeKeys) Index(g hashtable.Geometry, id InodeID) uint32 {
	h := uint64(g.AlphabetLength) + (id.Inode ^ uint64(uint32(id.Device)))
	return uint32((3*h + 1999) % uint64(g.IndexSize))
}

func (k inodeKeys) Order(_ hashtable.Geometry, id InodeID) uint64 {
	if k.order == nil {
		return id.Inode ^ (3 * (id.Device + 1))
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], id.Device)
	binary.BigEndian.PutUint64(buf[8:], id.Inode)
	return k.order(string(buf[:]))
}

func (inodeKeys) Equal(a, b InodeID) bool {
	return a == b
}

func (inodeKeys) Format(id InodeID) string {
	return fmt.Sprintf("device:%X inode:%d", id.Device, id.Inode)
}

// validName checks an entry name: non-empty, no '/' or NUL, at most max
// bytes.
func validName(name string, max int) *Error {
	if name == "" {
		return newError(ErrInvalidArgument, "", "empty entry name")
	}
	if max > 0 && len(name) > max {
		return newError(ErrNameTooLong, name, "entry name longer than %d bytes", max)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return newError(ErrInvalidArgument, name, "entry name contains %q", name[i])
		}
	}
	return nil
}
