// Package snapshot reads and writes dataset snapshot files, used to prime
// the dataset cache without touching the network. The on-disk layout is
// magic bytes, a little-endian compatibility level, then a zstd-compressed
// gob body holding the raw dataset documents.
package snapshot

import (
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/frangeo/frangeo/locmodel"
)

var magicBytes = []byte("FGCSNAP")

const compatibilityLevel uint32 = 1

type Metadata struct {
	Version   uint32
	CreatedAt time.Time
	Brands    []string
}

type body struct {
	Meta Metadata
	Docs map[string][]byte
}

// Save writes the raw documents keyed by brand. Documents are stored as
// encoded JSON so a newer reader can reparse them with its own model.
func Save(w io.Writer, docs map[string][]byte, meta Metadata) error {
	if _, err := w.Write(magicBytes); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, compatibilityLevel); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("can`t create zstd writer: %w", err)
	}

	meta.Version = compatibilityLevel
	if meta.Brands == nil {
		for key := range docs {
			meta.Brands = append(meta.Brands, key)
		}
		sort.Strings(meta.Brands)
	}

	if err := gob.NewEncoder(enc).Encode(body{Meta: meta, Docs: docs}); err != nil {
		enc.Close()
		return fmt.Errorf("error encoding snapshot: %w", err)
	}
	return enc.Close()
}

// Load reads a snapshot and decodes every document into a dataset.
func Load(r io.Reader, log *slog.Logger) (map[string]*locmodel.Dataset, Metadata, error) {
	if log == nil {
		log = slog.Default()
	}

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, Metadata{}, fmt.Errorf("error reading magic bytes: %w", err)
	}
	if string(magic) != string(magicBytes) {
		return nil, Metadata{}, fmt.Errorf("not a snapshot file")
	}

	var level uint32
	if err := binary.Read(r, binary.LittleEndian, &level); err != nil {
		return nil, Metadata{}, fmt.Errorf("error reading compatibility level: %w", err)
	}
	if level != compatibilityLevel {
		return nil, Metadata{}, fmt.Errorf("unsupported compatibility level: %d", level)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("can`t create zstd reader: %w", err)
	}
	defer dec.Close()

	var b body
	if err := gob.NewDecoder(dec).Decode(&b); err != nil {
		return nil, Metadata{}, fmt.Errorf("error decoding snapshot: %w", err)
	}

	datasets := make(map[string]*locmodel.Dataset, len(b.Docs))
	for key, doc := range b.Docs {
		var ds locmodel.Dataset
		if err := json.Unmarshal(doc, &ds); err != nil {
			return nil, Metadata{}, fmt.Errorf("error decoding dataset %q: %w", key, err)
		}
		ds.Key = key
		datasets[key] = &ds
	}

	log.Info("snapshot loaded",
		"brands", len(datasets),
		"created_at", b.Meta.CreatedAt,
		"version", b.Meta.Version)

	return datasets, b.Meta, nil
}

func SaveToFile(name string, docs map[string][]byte, meta Metadata) error {
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("can`t create snapshot file: %w", err)
	}
	defer file.Close()
	return Save(file, docs, meta)
}

func LoadFromFile(name string, log *slog.Logger) (map[string]*locmodel.Dataset, Metadata, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("can`t open snapshot file: %w", err)
	}
	defer file.Close()
	return Load(file, log)
}
