// Copyright 2024 The Nucleus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usermem

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"nucleus.dev/nucleus/pkg/errors/linuxerr"
)

func TestBytesIORoundTrip(t *testing.T) {
	io := NewBytesIO(0x1000, 0x100)
	src := []byte("pack my box with five dozen liquor jugs")

	n, err := io.CopyOut(0x1010, src)
	if err != nil || n != len(src) {
		t.Fatalf("CopyOut = (%d, %v), want (%d, nil)", n, err, len(src))
	}
	dst := make([]byte, len(src))
	n, err = io.CopyIn(0x1010, dst)
	if err != nil || n != len(dst) {
		t.Fatalf("CopyIn = (%d, %v), want (%d, nil)", n, err, len(dst))
	}
	if diff := cmp.Diff(src, dst); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBytesIOFaults(t *testing.T) {
	io := NewBytesIO(0x1000, 0x100)
	buf := make([]byte, 16)

	for _, tc := range []struct {
		name string
		addr Addr
	}{
		{"below base", 0xff8},
		{"straddles end", 0x10f8},
		{"far above", 0x4000},
		{"wraps address space", ^Addr(0) - 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if n, err := io.CopyOut(tc.addr, buf); !linuxerr.Equals(linuxerr.EFAULT, err) || n != 0 {
				t.Errorf("CopyOut(%#x) = (%d, %v), want (0, EFAULT)", tc.addr, n, err)
			}
			if n, err := io.CopyIn(tc.addr, buf); !linuxerr.Equals(linuxerr.EFAULT, err) || n != 0 {
				t.Errorf("CopyIn(%#x) = (%d, %v), want (0, EFAULT)", tc.addr, n, err)
			}
		})
	}
}

func TestBytesIOZeroLength(t *testing.T) {
	io := NewBytesIO(0x1000, 0x100)
	// Zero-length accesses never fault, even outside the mapping.
	if n, err := io.CopyOut(0x9999, nil); n != 0 || err != nil {
		t.Errorf("CopyOut(len 0) = (%d, %v)", n, err)
	}
	if n, err := io.CopyIn(0x9999, nil); n != 0 || err != nil {
		t.Errorf("CopyIn(len 0) = (%d, %v)", n, err)
	}
}

func TestBytesIOEdges(t *testing.T) {
	io := NewBytesIO(0x1000, 0x100)
	buf := make([]byte, 8)
	// First and last valid slots.
	if _, err := io.CopyOut(0x1000, buf); err != nil {
		t.Errorf("CopyOut(base) = %v", err)
	}
	if _, err := io.CopyOut(0x10f8, buf); err != nil {
		t.Errorf("CopyOut(end-8) = %v", err)
	}
}

func TestAddrAddLength(t *testing.T) {
	if end, ok := Addr(0x1000).AddLength(0x10); !ok || end != 0x1010 {
		t.Errorf("AddLength = (%#x, %t)", end, ok)
	}
	if _, ok := (^Addr(0)).AddLength(2); ok {
		t.Error("overflowing AddLength reported ok")
	}
}

func TestAddrRoundDown(t *testing.T) {
	for _, tc := range []struct {
		addr  Addr
		align uint64
		want  Addr
	}{
		{0x1237, 16, 0x1230},
		{0x1230, 16, 0x1230},
		{0x1237, 8, 0x1230},
		{0x123f, 2, 0x123e},
	} {
		if got := tc.addr.RoundDown(tc.align); got != tc.want {
			t.Errorf("RoundDown(%#x, %d) = %#x, want %#x", tc.addr, tc.align, got, tc.want)
		}
	}
}
