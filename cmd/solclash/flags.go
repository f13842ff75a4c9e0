package main

import (
	"strconv"

	"github.com/spf13/pflag"
)

// optionalUint64 is a pflag.Value that remembers whether it was set, so an
// absent flag maps to nil instead of zero.
type optionalUint64 struct {
	set   bool
	value uint64
}

var _ pflag.Value = (*optionalUint64)(nil)

func (o *optionalUint64) String() string {
	if !o.set {
		return ""
	}
	return strconv.FormatUint(o.value, 10)
}

func (o *optionalUint64) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	o.value, o.set = v, true
	return nil
}

func (o *optionalUint64) Type() string { return "uint64" }

// Ptr returns nil until Set has been called.
func (o *optionalUint64) Ptr() *uint64 {
	if !o.set {
		return nil
	}
	return &o.value
}
