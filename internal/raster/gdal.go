package raster

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/airbusgeo/godal"
)

// memPrefix is the GDAL virtual filesystem under which fetched GeoTIFF bytes
// are opened without touching disk.
const memPrefix = "/vsisolar/"

var (
	gdalOnce sync.Once
	gdalErr  error
	memFiles = &memStore{files: make(map[string][]byte)}
)

// initGDAL registers the drivers and the in-memory handler once per process.
func initGDAL() error {
	gdalOnce.Do(func() {
		godal.RegisterAll()
		if err := godal.RegisterVSIHandler(memPrefix, memFiles); err != nil {
			gdalErr = fmt.Errorf("register %s handler: %w", memPrefix, err)
		}
	})
	return gdalErr
}

// memStore serves byte slices to GDAL through godal's VSI handler interface.
type memStore struct {
	next atomic.Uint64

	mu    sync.RWMutex
	files map[string][]byte
}

// put exposes data as a GDAL filename until release is called.
func (m *memStore) put(data []byte) (name string, release func()) {
	key := strconv.FormatUint(m.next.Add(1), 10) + ".tif"
	m.mu.Lock()
	m.files[key] = data
	m.mu.Unlock()
	return memPrefix + key, func() {
		m.mu.Lock()
		delete(m.files, key)
		m.mu.Unlock()
	}
}

func (m *memStore) get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[strings.TrimPrefix(key, memPrefix)]
	return data, ok
}

// ReadAt implements godal.KeySizerReaderAt.
func (m *memStore) ReadAt(key string, buf []byte, off int64) (int, error) {
	data, ok := m.get(key)
	if !ok {
		return 0, os.ErrNotExist
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(buf, data[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

// Size implements godal.KeySizerReaderAt.
func (m *memStore) Size(key string) (int64, error) {
	data, ok := m.get(key)
	if !ok {
		return 0, os.ErrNotExist
	}
	return int64(len(data)), nil
}

func (m *memStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
