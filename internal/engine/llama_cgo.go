//go:build llama

package engine

// cgo link directives for the in-process llama backend: an rpath of $ORIGIN
// so libllama.so next to the binary (./bin) is found at runtime, and
// -L${SRCDIR}/../../bin for link time.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
