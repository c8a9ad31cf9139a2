//go:build linux && (amd64 || arm64)

/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package shmio creates and opens file-backed shared memory segments used
// to host a mutable object's header and buffer.
package shmio

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Supported reports whether this platform implements real shared memory.
const Supported = true

// Segment is a memory-mapped region backed by a file under /dev/shm (or a
// temp-dir fallback). Mem's length equals the size requested at creation.
type Segment struct {
	file *os.File
	Mem  []byte
	Path string
}

// Create creates a new segment of the given size, failing if one by this
// name already exists.
func Create(name string, size int) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("shmio: create %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("shmio: truncate %s: %w", path, err)
	}

	mem, err := mmap(file, size)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("shmio: mmap %s: %w", path, err)
	}

	return &Segment{file: file, Mem: mem, Path: path}, nil
}

// Open maps an existing segment of exactly size bytes.
func Open(name string, size int) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shmio: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmio: stat %s: %w", path, err)
	}
	if info.Size() < int64(size) {
		file.Close()
		return nil, fmt.Errorf("shmio: segment %s too small: %d < %d", path, info.Size(), size)
	}

	mem, err := mmap(file, size)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmio: mmap %s: %w", path, err)
	}

	return &Segment{file: file, Mem: mem, Path: path}, nil
}

// Close unmaps and closes the segment's backing file. It does not remove
// the backing path; call Remove for that.
func (s *Segment) Close() error {
	var err error
	if s.Mem != nil {
		err = syscall.Munmap(s.Mem)
		s.Mem = nil
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Remove unlinks the segment's backing path. Safe to call after Close.
func Remove(name string) error {
	return os.Remove(segmentPath(name))
}

// Exists reports whether a segment with this name currently exists.
func Exists(name string) bool {
	_, err := os.Stat(segmentPath(name))
	return err == nil
}

func segmentPath(name string) string {
	if devShmAvailable() {
		return filepath.Join("/dev/shm", "mutchan_"+name)
	}
	return filepath.Join(os.TempDir(), "mutchan_"+name)
}

func devShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	return err == nil && info.IsDir()
}

func mmap(file *os.File, size int) ([]byte, error) {
	return syscall.Mmap(int(file.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}
