// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bytes"
	"fmt"
	"io"
)

// memFile is an io.WriteCloser backed by a bytes.Buffer, so tests can
// inspect a worker's CSV output without touching the filesystem.
type memFile struct {
	bytes.Buffer
}

func (f *memFile) Close() error { return nil }

// memOutputSet hands out one memFile per distinct suffix, recording
// them by name so a test can read back what a worker wrote.
type memOutputSet struct {
	files map[string]*memFile
}

func newMemOutputSet() *memOutputSet {
	return &memOutputSet{files: make(map[string]*memFile)}
}

func (s *memOutputSet) Create(suffix string) (io.WriteCloser, error) {
	f := &memFile{}
	if _, exists := s.files[suffix]; exists {
		return nil, fmt.Errorf("suffix %q already created", suffix)
	}
	s.files[suffix] = f
	return f, nil
}

func (s *memOutputSet) content(suffix string) string {
	f, ok := s.files[suffix]
	if !ok {
		return ""
	}
	return f.String()
}
