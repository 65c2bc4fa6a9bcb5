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

// Package platform holds the address-space collaborator consumed by the
// scheduling core. The core only ever compares handles for identity and
// activates the target's space when it differs from the current one; what
// activation means is the platform's business.
package platform

// AddressSpace is an opaque per-process address space handle.
type AddressSpace interface {
	// Activate makes this the translation context for subsequent user
	// accesses.
	Activate()

	// Activations returns how many times this space has been activated.
	Activations() int64
}

type addressSpace struct {
	name        string
	activations int64
}

// NewAddressSpace returns a fresh address space handle. Handles compare by
// identity.
func NewAddressSpace(name string) AddressSpace {
	return &addressSpace{name: name}
}

// Activate implements AddressSpace.Activate.
func (as *addressSpace) Activate() {
	as.activations++
}

// Activations implements AddressSpace.Activations.
func (as *addressSpace) Activations() int64 {
	return as.activations
}
