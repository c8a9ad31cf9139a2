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

// Package mutablechannel implements the mutable shared-memory object
// channel: a fixed-size shared-memory region identified by a stable
// ObjectID whose contents a single writer overwrites repeatedly and one
// or more readers observe, in order, without tearing.
//
// A Manager owns the per-process bookkeeping for a set of channels,
// performs the cross-process semaphore handshake for each region's
// header, and exposes the four-phase WriteAcquire/WriteRelease/
// ReadAcquire/ReadRelease protocol. Package relay builds a cross-node
// forwarder on top of a Manager.
package mutablechannel
