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

package linux

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSignalValidity(t *testing.T) {
	for _, tc := range []struct {
		sig  Signal
		want bool
	}{
		{0, false},
		{-1, false},
		{SIGHUP, true},
		{SIGSYS, true},
		{FirstRTSignal, true},
		{SignalMaximum, true},
		{SignalMaximum + 1, false},
	} {
		if got := tc.sig.IsValid(); got != tc.want {
			t.Errorf("Signal(%d).IsValid() = %t, want %t", tc.sig, got, tc.want)
		}
	}
}

func TestSignalClasses(t *testing.T) {
	if !SIGHUP.IsStandard() || SIGHUP.IsRealtime() {
		t.Error("SIGHUP misclassified")
	}
	if Signal(FirstRTSignal).IsStandard() || !Signal(FirstRTSignal).IsRealtime() {
		t.Error("first realtime signal misclassified")
	}
}

func TestSignalString(t *testing.T) {
	for _, tc := range []struct {
		sig  Signal
		want string
	}{
		{SIGKILL, "SIGKILL"},
		{SIGSEGV, "SIGSEGV"},
		{Signal(34), "SIGRT2"},
		{Signal(0), "signal 0"},
		{Signal(99), "signal 99"},
	} {
		if got := tc.sig.String(); got != tc.want {
			t.Errorf("Signal(%d).String() = %q, want %q", tc.sig, got, tc.want)
		}
	}
}

func TestSignalSetBasics(t *testing.T) {
	var s SignalSet
	if !s.IsEmpty() {
		t.Error("zero set not empty")
	}
	s.Add(SIGTERM)
	s.Add(SIGINT)
	if s.IsEmpty() || !s.Contains(SIGTERM) || !s.Contains(SIGINT) {
		t.Errorf("set after adds = %v", s)
	}
	if s.Contains(SIGKILL) {
		t.Error("set contains signal never added")
	}
	s.Remove(SIGTERM)
	if s.Contains(SIGTERM) {
		t.Error("removed signal still present")
	}
	s.Remove(SIGTERM) // removing again is a no-op
	if !s.Contains(SIGINT) {
		t.Error("remove clobbered an unrelated bit")
	}
}

func TestSignalSetFirstIsLowest(t *testing.T) {
	var s SignalSet
	if got := s.First(); got != 0 {
		t.Errorf("First of empty set = %v", got)
	}
	s.Add(SIGTERM) // 15
	s.Add(SIGINT)  // 2
	s.Add(SIGKILL) // 9
	want := []Signal{SIGINT, SIGKILL, SIGTERM}
	var got []Signal
	for !s.IsEmpty() {
		sig := s.First()
		got = append(got, sig)
		s.Remove(sig)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("drain order mismatch (-want +got):\n%s", diff)
	}
}

func TestMakeSignalSet(t *testing.T) {
	s := MakeSignalSet(SIGHUP, SIGUSR1)
	var want SignalSet
	want.Add(SIGHUP)
	want.Add(SIGUSR1)
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("MakeSignalSet mismatch (-want +got):\n%s", diff)
	}
}

func TestSignalSetApplyWord(t *testing.T) {
	base := MakeSignalSet(SIGHUP)

	s := base
	if !s.ApplyWord(SIG_BLOCK, 0, MakeSignalSet(SIGUSR1).Word(0)) {
		t.Fatal("SIG_BLOCK rejected")
	}
	if !s.Contains(SIGHUP) || !s.Contains(SIGUSR1) {
		t.Errorf("after BLOCK: %v", s)
	}

	if !s.ApplyWord(SIG_UNBLOCK, 0, MakeSignalSet(SIGHUP).Word(0)) {
		t.Fatal("SIG_UNBLOCK rejected")
	}
	if s.Contains(SIGHUP) || !s.Contains(SIGUSR1) {
		t.Errorf("after UNBLOCK: %v", s)
	}

	if !s.ApplyWord(SIG_SETMASK, 0, MakeSignalSet(SIGTERM).Word(0)) {
		t.Fatal("SIG_SETMASK rejected")
	}
	if diff := cmp.Diff(MakeSignalSet(SIGTERM), s); diff != "" {
		t.Errorf("after SETMASK (-want +got):\n%s", diff)
	}

	// An invalid how is reported and leaves the set alone.
	if s.ApplyWord(42, 0, ^uint64(0)) {
		t.Error("invalid how accepted")
	}
	if diff := cmp.Diff(MakeSignalSet(SIGTERM), s); diff != "" {
		t.Errorf("invalid how mutated the set (-want +got):\n%s", diff)
	}

	// Out-of-range words validate how but change nothing.
	if !s.ApplyWord(SIG_BLOCK, SignalSetWords, ^uint64(0)) {
		t.Error("out-of-range word with valid how rejected")
	}
	if s.ApplyWord(42, SignalSetWords, 0) {
		t.Error("out-of-range word with invalid how accepted")
	}
}

func TestWaitStatusEncodings(t *testing.T) {
	ws := WaitStatusExit(3)
	if !ws.Exited() || ws.Signaled() || ws.Stopped() || ws.Continued() {
		t.Errorf("exit status misclassified: %v", ws)
	}
	if got := ws.ExitStatus(); got != 3 {
		t.Errorf("ExitStatus = %d, want 3", got)
	}

	ws = WaitStatusTerminationSignal(SIGKILL)
	if !ws.Signaled() || ws.Exited() {
		t.Errorf("termination status misclassified: %v", ws)
	}
	if got := ws.TerminationSignal(); got != SIGKILL {
		t.Errorf("TerminationSignal = %v, want SIGKILL", got)
	}

	ws = WaitStatusStop(SIGTSTP)
	if !ws.Stopped() || ws.Exited() || ws.Signaled() {
		t.Errorf("stop status misclassified: %v", ws)
	}
	if got := ws.StopSignal(); got != SIGTSTP {
		t.Errorf("StopSignal = %v, want SIGTSTP", got)
	}

	ws = WaitStatusContinued
	if !ws.Continued() || ws.Stopped() || ws.Exited() {
		t.Errorf("continue status misclassified: %v", ws)
	}
}

func TestSignalActPredicates(t *testing.T) {
	var act SignalAct
	if !act.IsDefault() || act.IsIgnore() {
		t.Error("zero action is not SIG_DFL")
	}
	act.Handler = SignalActIgnore
	if !act.IsIgnore() || act.IsDefault() {
		t.Error("SIG_IGN not recognized")
	}
	act.Handler = 0x5000
	if act.IsIgnore() || act.IsDefault() {
		t.Error("custom handler misclassified")
	}

	act.Flags = SignalFlagSigInfo | SignalFlagOnStack
	if !act.IsSigInfo() || !act.IsOnStack() || act.IsNoCldStop() || act.IsNoCldWait() {
		t.Errorf("flag predicates wrong for %#x", act.Flags)
	}
}
