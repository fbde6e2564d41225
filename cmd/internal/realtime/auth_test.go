package realtime

import (
	"context"
	"errors"
	"testing"
)

func TestStaticTokenVerifier(t *testing.T) {
	t.Parallel()

	v := NewStaticTokenVerifier(map[string]string{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	}, []byte("test-key"))

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{name: "known token", token: "tok-alice", wantID: "alice"},
		{name: "token with surrounding space", token: "  tok-bob  ", wantID: "bob"},
		{name: "unknown token", token: "tok-mallory", wantErr: ErrUnauthenticated},
		{name: "empty token", token: "", wantErr: ErrUnauthenticated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := v.Verify(context.Background(), tc.token)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v want=%v", err, tc.wantErr)
			}
			if got != tc.wantID {
				t.Fatalf("userID=%q want=%q", got, tc.wantID)
			}
		})
	}
}

func TestHashTokenHex_KeyedAndUnkeyedDiffer(t *testing.T) {
	t.Parallel()

	unkeyed := hashTokenHex("tok", nil)
	keyed := hashTokenHex("tok", []byte("k"))
	if unkeyed == keyed {
		t.Fatal("HMAC digest must differ from the bare hash")
	}
	if hashTokenHex("tok", []byte("k")) != keyed {
		t.Fatal("digest is not deterministic")
	}
	if hashTokenHex("tok", []byte("other")) == keyed {
		t.Fatal("different keys produced the same digest")
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header wins", header: "Bearer abc", query: "xyz", want: "abc"},
		{name: "header with padding", header: "  Bearer abc  ", query: "", want: "abc"},
		{name: "query fallback", header: "", query: "xyz", want: "xyz"},
		{name: "non-bearer scheme falls through", header: "Basic abc", query: "xyz", want: "xyz"},
		{name: "nothing", header: "", query: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := BearerToken(tc.header, tc.query); got != tc.want {
				t.Fatalf("got=%q want=%q", got, tc.want)
			}
		})
	}
}
