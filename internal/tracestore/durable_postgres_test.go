package tracestore

import "testing"

func TestVectorLiteralFormatsPgvectorArraySyntax(t *testing.T) {
	got := vectorLiteral([]float32{1, 0.5, -2})
	want := "[1,0.5,-2]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestVectorLiteralEmpty(t *testing.T) {
	if got := vectorLiteral(nil); got != "[]" {
		t.Fatalf("expected empty array literal, got %q", got)
	}
}
