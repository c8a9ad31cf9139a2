//go:build !linux || !(amd64 || arm64)

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

package shmio

import "errors"

// Supported reports whether this platform implements real shared memory.
const Supported = false

// ErrUnsupported is returned by every operation on this platform.
var ErrUnsupported = errors.New("shmio: not supported on this platform")

type Segment struct {
	Mem  []byte
	Path string
}

func Create(name string, size int) (*Segment, error) {
	return nil, ErrUnsupported
}

func Open(name string, size int) (*Segment, error) {
	return nil, ErrUnsupported
}

func (s *Segment) Close() error {
	return ErrUnsupported
}

func Remove(name string) error {
	return ErrUnsupported
}

func Exists(name string) bool {
	return false
}
