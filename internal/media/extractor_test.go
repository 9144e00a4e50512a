package media

import "testing"

func TestIsSupportedVideo(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"clip.mp4", true},
		{"clip.MKV", true},
		{"clip.webm", true},
		{"clip.txt", false},
		{"clip.wav", false},
		{"noext", false},
	}
	for _, tc := range cases {
		if got := IsSupportedVideo(tc.name); got != tc.want {
			t.Errorf("IsSupportedVideo(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExtractRejectsUnsupportedFormat(t *testing.T) {
	e := New(0)
	err := e.Extract(nil, "clip.txt", "/tmp/out.wav") //nolint:staticcheck // nil ctx ok, extension check precedes any ctx use
	var extErr *Error
	if err == nil {
		t.Fatalf("expected error")
	}
	if !asError(err, &extErr) {
		t.Fatalf("expected *media.Error, got %T", err)
	}
	if extErr.Kind != KindUnsupportedFormat {
		t.Fatalf("expected KindUnsupportedFormat, got %s", extErr.Kind)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
