package retrieval

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Storage persists an index together with its metadata list.
type Storage interface {
	Save(ctx context.Context, ix *Indexer, meta []Metadata) error
	Load(ctx context.Context) (*Indexer, []Metadata, error)
}

// #region index-encoding
var indexMagic = [4]byte{'C', 'L', 'I', 'X'}

const indexFormatVersion uint32 = 1

// encodeIndex serialises the index as magic, version, metric, dim, count and
// little-endian float32 rows.
func encodeIndex(ix *Indexer) []byte {
	var buf bytes.Buffer
	buf.Write(indexMagic[:])
	binary.Write(&buf, binary.LittleEndian, indexFormatVersion)
	binary.Write(&buf, binary.LittleEndian, uint16(len(ix.metric)))
	buf.WriteString(string(ix.metric))
	binary.Write(&buf, binary.LittleEndian, uint32(ix.dim))
	binary.Write(&buf, binary.LittleEndian, uint32(len(ix.vecs)))
	for _, v := range ix.vecs {
		buf.Write(encodeVector(v))
	}
	return buf.Bytes()
}

func decodeIndex(b []byte) (*Indexer, error) {
	r := bytes.NewReader(b)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != indexMagic {
		return nil, fmt.Errorf("decode index: bad magic")
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if version != indexFormatVersion {
		return nil, fmt.Errorf("decode index: unsupported version %d", version)
	}
	var metricLen uint16
	if err := binary.Read(r, binary.LittleEndian, &metricLen); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	metric := make([]byte, metricLen)
	if _, err := io.ReadFull(r, metric); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if want := uint64(n) * uint64(dim) * 4; want != uint64(r.Len()) {
		return nil, fmt.Errorf("decode index: header declares %d vectors of dim %d (%d bytes), body has %d: %w",
			n, dim, want, r.Len(), ErrCorruptIndex)
	}

	ix, err := NewIndexer(int(dim), Metric(metric))
	if err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	row := make([]byte, int(dim)*4)
	vecs := make([][]float32, n)
	for i := range vecs {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("decode index: row %d: %w", i, err)
		}
		vecs[i] = decodeVector(row)
	}
	if err := ix.restore(vecs); err != nil {
		return nil, err
	}
	return ix, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion index-encoding

// #region file-storage

// FileStorage keeps the index and its metadata in two files.
type FileStorage struct {
	IndexPath    string
	MetadataPath string
}

// NewFileStorage creates a storage over the two paths.
func NewFileStorage(indexPath, metadataPath string) *FileStorage {
	return &FileStorage{IndexPath: indexPath, MetadataPath: metadataPath}
}

func (s *FileStorage) Save(_ context.Context, ix *Indexer, meta []Metadata) error {
	for _, p := range []string{s.IndexPath, s.MetadataPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", p, err)
		}
	}
	if err := os.WriteFile(s.IndexPath, encodeIndex(ix), 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	data, err := marshalMetadata(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.MetadataPath, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Load reads both files. A missing metadata file yields an empty list.
func (s *FileStorage) Load(_ context.Context) (*Indexer, []Metadata, error) {
	raw, err := os.ReadFile(s.IndexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}
	ix, err := decodeIndex(raw)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(s.MetadataPath)
	if errors.Is(err, os.ErrNotExist) {
		return ix, []Metadata{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}
	meta, err := unmarshalMetadata(data)
	if err != nil {
		return nil, nil, err
	}
	return ix, meta, nil
}

// #endregion file-storage

func marshalMetadata(meta []Metadata) ([]byte, error) {
	if meta == nil {
		meta = []Metadata{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) ([]Metadata, error) {
	var meta []Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if meta == nil {
		meta = []Metadata{}
	}
	return meta, nil
}
