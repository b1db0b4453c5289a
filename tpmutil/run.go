// Copyright (c) 2018, Google Inc. All rights reserved.
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

// Package tpmutil provides common utility functions for both TPM 1.2 and TPM 2.0 devices.
package tpmutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// maxTPMResponse bounds a single response read. The reference TPM never
// produces responses larger than this.
const maxTPMResponse = 4096

// responseHeaderSize is tag (2) + size (4) + response code (4).
const responseHeaderSize = 10

var (
	// ErrNilTransport is returned when RunCommandRaw has nothing to talk to.
	ErrNilTransport = errors.New("nil TPM transport")
	// ErrShortResponse is returned when the TPM answered with fewer bytes than a header.
	ErrShortResponse = errors.New("TPM response shorter than a response header")
	// ErrResponseSize is returned when the size in the response header does
	// not match what was read.
	ErrResponseSize = errors.New("TPM response size does not match its header")
)

// RunCommandRaw writes one complete command buffer to rw and reads back one
// complete response buffer. The response is returned whole, header included;
// interpreting the response code is left to the caller.
func RunCommandRaw(rw io.ReadWriter, inb []byte) ([]byte, error) {
	return RunCommandRawTimeout(rw, inb, 0)
}

// RunCommandRawTimeout is RunCommandRaw with a bound on how long a device
// file may take to answer. A timeout of zero or less waits forever. An
// expired wait returns an error wrapping os.ErrDeadlineExceeded; the
// response, if it ever arrives, is left unread.
func RunCommandRawTimeout(rw io.ReadWriter, inb []byte, timeout time.Duration) ([]byte, error) {
	if rw == nil {
		return nil, ErrNilTransport
	}
	if _, err := rw.Write(inb); err != nil {
		return nil, fmt.Errorf("writing command: %w", err)
	}

	// Device files deliver the whole response in one read once it is ready.
	if f, ok := rw.(*os.File); ok {
		if timeout <= 0 {
			timeout = pollNoTimeout
		}
		if err := poll(f, timeout); err != nil {
			return nil, fmt.Errorf("waiting for response: %w", err)
		}
	}

	outb := make([]byte, maxTPMResponse)
	outlen, err := rw.Read(outb)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	// Resize the buffer to match the amount read from the TPM.
	outb = outb[:outlen]
	if len(outb) < responseHeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortResponse, len(outb))
	}
	if size := binary.BigEndian.Uint32(outb[2:]); int(size) != len(outb) {
		return nil, fmt.Errorf("%w: header says %d, read %d", ErrResponseSize, size, len(outb))
	}
	return outb, nil
}
