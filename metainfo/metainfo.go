// Package metainfo decodes torrent metainfo dictionaries and computes
// the infohash that identifies a torrent on the DHT.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/amit19singh/Kademlia-DHT/bencode"
)

// PieceSize is the length of one SHA-1 piece digest inside "pieces".
const PieceSize = 20

// TypeMismatchError reports a metainfo field holding the wrong
// bencode form.
type TypeMismatchError struct {
	Key  string
	Want string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("metainfo: field %q is not a %s", e.Key, e.Want)
}

// MissingFieldError reports a required metainfo field that is absent.
type MissingFieldError struct {
	Key string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("metainfo: required field %q is missing", e.Key)
}

// File is one file carried by a torrent. Path components are joined
// with "/" and never resolved against the filesystem.
type File struct {
	Path   string
	Length int64
}

// Metainfo is a decoded torrent metainfo dictionary.
type Metainfo struct {
	Announce     string
	Comment      string
	CreationDate int64

	Name        string
	PieceLength int64
	Pieces      [][PieceSize]byte
	Files       []File

	TotalSize int64
	NumPieces int64
	InfoHash  [20]byte
}

// Parse decodes a bencoded metainfo buffer. The infohash is the SHA-1
// digest of the exact byte range the "info" dictionary occupied in
// data, so no re-encoding step is involved.
func Parse(data []byte) (*Metainfo, error) {
	value, err := bencode.DecodeAll(data)
	if err != nil {
		return nil, fmt.Errorf("metainfo: %w", err)
	}

	root, ok := value.Dict()
	if !ok {
		return nil, &TypeMismatchError{Key: "(root)", Want: "dictionary"}
	}

	m := &Metainfo{}
	if m.Announce, err = optionalString(root, "announce"); err != nil {
		return nil, err
	}
	if m.Comment, err = optionalString(root, "comment"); err != nil {
		return nil, err
	}
	if m.CreationDate, err = optionalInt(root, "creation date"); err != nil {
		return nil, err
	}

	infoValue, ok := root.Get("info")
	if !ok {
		return nil, &MissingFieldError{Key: "info"}
	}
	info, ok := infoValue.Dict()
	if !ok {
		return nil, &TypeMismatchError{Key: "info", Want: "dictionary"}
	}

	if err := m.parseInfo(info); err != nil {
		return nil, err
	}

	m.InfoHash = sha1.Sum(infoValue.Raw())
	return m, nil
}

func (m *Metainfo) parseInfo(info *bencode.Dict) error {
	var err error
	if m.Name, err = requiredString(info, "name"); err != nil {
		return err
	}
	if m.PieceLength, err = requiredInt(info, "piece length"); err != nil {
		return err
	}
	if m.PieceLength <= 0 {
		return fmt.Errorf("metainfo: piece length %d is not positive", m.PieceLength)
	}
	if err = m.parsePieces(info); err != nil {
		return err
	}
	if err = m.parseFiles(info); err != nil {
		return err
	}

	for _, f := range m.Files {
		m.TotalSize += f.Length
	}
	m.NumPieces = m.TotalSize / m.PieceLength
	if m.TotalSize%m.PieceLength > 0 {
		m.NumPieces++
	}
	return nil
}

// parsePieces splits the "pieces" byte string into 20-byte digests.
func (m *Metainfo) parsePieces(info *bencode.Dict) error {
	value, ok := info.Get("pieces")
	if !ok {
		return &MissingFieldError{Key: "pieces"}
	}
	raw, ok := value.StringBytes()
	if !ok {
		return &TypeMismatchError{Key: "pieces", Want: "string"}
	}
	if len(raw)%PieceSize != 0 {
		return fmt.Errorf("metainfo: pieces length %d is not a multiple of %d", len(raw), PieceSize)
	}

	m.Pieces = make([][PieceSize]byte, 0, len(raw)/PieceSize)
	for off := 0; off < len(raw); off += PieceSize {
		var piece [PieceSize]byte
		copy(piece[:], raw[off:off+PieceSize])
		m.Pieces = append(m.Pieces, piece)
	}
	return nil
}

// parseFiles handles single-file mode ("length" present) and
// multi-file mode ("files" list of {length, path}).
func (m *Metainfo) parseFiles(info *bencode.Dict) error {
	if _, ok := info.Get("length"); ok {
		length, err := requiredInt(info, "length")
		if err != nil {
			return err
		}
		m.Files = []File{{Path: m.Name, Length: length}}
		return nil
	}

	value, ok := info.Get("files")
	if !ok {
		return &MissingFieldError{Key: "files"}
	}
	list, ok := value.List()
	if !ok {
		return &TypeMismatchError{Key: "files", Want: "list"}
	}

	for _, entry := range list {
		dict, ok := entry.Dict()
		if !ok {
			return &TypeMismatchError{Key: "files entry", Want: "dictionary"}
		}
		file, err := parseFileEntry(dict)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, file)
	}
	return nil
}

func parseFileEntry(entry *bencode.Dict) (File, error) {
	length, err := requiredInt(entry, "length")
	if err != nil {
		return File{}, err
	}

	value, ok := entry.Get("path")
	if !ok {
		return File{}, &MissingFieldError{Key: "path"}
	}
	list, ok := value.List()
	if !ok {
		return File{}, &TypeMismatchError{Key: "path", Want: "list"}
	}
	if len(list) == 0 {
		return File{}, fmt.Errorf("metainfo: file entry has empty path")
	}

	components := make([]string, 0, len(list))
	for _, item := range list {
		component, ok := item.StringBytes()
		if !ok {
			return File{}, &TypeMismatchError{Key: "path component", Want: "string"}
		}
		components = append(components, string(component))
	}

	return File{Path: strings.Join(components, "/"), Length: length}, nil
}

func optionalString(d *bencode.Dict, key string) (string, error) {
	value, ok := d.Get(key)
	if !ok {
		return "", nil
	}
	s, ok := value.StringBytes()
	if !ok {
		return "", &TypeMismatchError{Key: key, Want: "string"}
	}
	return string(s), nil
}

func optionalInt(d *bencode.Dict, key string) (int64, error) {
	value, ok := d.Get(key)
	if !ok {
		return 0, nil
	}
	n, ok := value.Int()
	if !ok {
		return 0, &TypeMismatchError{Key: key, Want: "integer"}
	}
	return n, nil
}

func requiredString(d *bencode.Dict, key string) (string, error) {
	value, ok := d.Get(key)
	if !ok {
		return "", &MissingFieldError{Key: key}
	}
	s, ok := value.StringBytes()
	if !ok {
		return "", &TypeMismatchError{Key: key, Want: "string"}
	}
	return string(s), nil
}

func requiredInt(d *bencode.Dict, key string) (int64, error) {
	value, ok := d.Get(key)
	if !ok {
		return 0, &MissingFieldError{Key: key}
	}
	n, ok := value.Int()
	if !ok {
		return 0, &TypeMismatchError{Key: key, Want: "integer"}
	}
	return n, nil
}
