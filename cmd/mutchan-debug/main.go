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

// Command mutchan-debug exercises a mutable object channel's WriteAcquire/
// ReadAcquire round trip across a sweep of payload sizes, the same kind of
// capacity probe the teacher's debug-capacity tool ran against its ring
// buffer, adapted to the header/object-semaphore protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/objectstore-rt/mutablechannel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/grpclog"
)

func main() {
	allocated := flag.Uint64("allocated-size", 65536, "bytes available in the region's data buffer")
	verbose := flag.Bool("v", false, "log through the zap-backed grpclog logger at debug verbosity")
	flag.Parse()

	grpclog.SetLoggerV2(newZapGRPCLogger(*verbose))

	region := mutablechannel.NewMemRegion("mutchan-debug", *allocated)
	m := mutablechannel.NewManager()
	id := mutablechannel.ObjectID{0xDE, 0xBC}

	ctx := context.Background()
	if _, err := m.RegisterChannel(ctx, id, region, false); err != nil {
		log.Fatalf("register writer role: %v", err)
	}
	if _, err := m.RegisterChannel(ctx, id, region, true); err != nil {
		log.Fatalf("register reader role: %v", err)
	}

	fmt.Printf("=== Payload Size Sweep (allocated %d bytes) ===\n", *allocated)
	sizes := []uint64{1, 16, 64, 256, 1024, 4096, 16384, 65536, 65537}
	for _, size := range sizes {
		start := time.Now()
		buf, err := m.WriteAcquire(ctx, id, size, nil, 0, 1)
		if err != nil {
			fmt.Printf("size %8d: WriteAcquire FAIL (%v)\n", size, err)
			continue
		}
		for i := range buf {
			buf[i] = byte(i % 256)
		}
		if err := m.WriteRelease(ctx, id); err != nil {
			fmt.Printf("size %8d: WriteRelease FAIL (%v)\n", size, err)
			continue
		}

		data, _, err := m.ReadAcquire(ctx, id)
		if err != nil {
			fmt.Printf("size %8d: ReadAcquire FAIL (%v)\n", size, err)
			continue
		}
		if uint64(len(data)) != size {
			fmt.Printf("size %8d: round trip returned %d bytes\n", size, len(data))
		}
		if err := m.ReadRelease(ctx, id); err != nil {
			fmt.Printf("size %8d: ReadRelease FAIL (%v)\n", size, err)
			continue
		}
		fmt.Printf("size %8d: OK (%s)\n", size, time.Since(start))
	}

	if err := m.Close(); err != nil {
		log.Fatalf("manager close: %v", err)
	}
}

// zapGRPCLogger adapts a *zap.Logger to grpclog.LoggerV2. main always
// installs it, so zap is exercised directly rather than left a purely
// transitive dependency; the -v flag raises its level to debug.
type zapGRPCLogger struct {
	l *zap.SugaredLogger
	v int
}

func newZapGRPCLogger(verbose bool) *zapGRPCLogger {
	level := zapcore.InfoLevel
	v := 0
	if verbose {
		level = zapcore.DebugLevel
		v = 2
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("build zap logger: %v", err)
	}
	return &zapGRPCLogger{l: logger.Sugar(), v: v}
}

func (z *zapGRPCLogger) Info(args ...any)                     { z.l.Info(args...) }
func (z *zapGRPCLogger) Infoln(args ...any)                   { z.l.Info(args...) }
func (z *zapGRPCLogger) Infof(format string, args ...any)     { z.l.Infof(format, args...) }
func (z *zapGRPCLogger) Warning(args ...any)                  { z.l.Warn(args...) }
func (z *zapGRPCLogger) Warningln(args ...any)                { z.l.Warn(args...) }
func (z *zapGRPCLogger) Warningf(format string, args ...any)  { z.l.Warnf(format, args...) }
func (z *zapGRPCLogger) Error(args ...any)                    { z.l.Error(args...) }
func (z *zapGRPCLogger) Errorln(args ...any)                  { z.l.Error(args...) }
func (z *zapGRPCLogger) Errorf(format string, args ...any)    { z.l.Errorf(format, args...) }
func (z *zapGRPCLogger) Fatal(args ...any)                    { z.l.Fatal(args...) }
func (z *zapGRPCLogger) Fatalln(args ...any)                  { z.l.Fatal(args...) }
func (z *zapGRPCLogger) Fatalf(format string, args ...any)    { z.l.Fatalf(format, args...) }
func (z *zapGRPCLogger) V(l int) bool                         { return l <= z.v }
