package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/metadata"

	"github.com/kazu-apps/carenote-sync/internal/auth"
)

func newPrincipal() auth.Principal {
	return auth.Principal{MemberID: uuid.Must(uuid.NewV4()), RecipientID: uuid.Must(uuid.NewV4())}
}

func tokenFor(t *testing.T, key []byte, p auth.Principal, ttl time.Duration) string {
	t.Helper()
	tok, _, err := auth.NewIssuer(key, ttl).Issue(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func ctxAuth(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer "+token))
}

func Test_bearerTokenFromMD(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		headers []string
		want    string
	}{
		{"plain", []string{"Bearer eyJ.payload.sig"}, "eyJ.payload.sig"},
		{"lower case scheme", []string{"  bearer   eyJ.p.s  "}, "eyJ.p.s"},
		{"second header", []string{"Basic dXNlcjpwdw==", "Bearer eyJ.x.y"}, "eyJ.x.y"},
		{"basic only", []string{"Basic dXNlcjpwdw=="}, ""},
		{"empty token", []string{"Bearer    "}, ""},
		{"no scheme", []string{"eyJ.payload.sig"}, ""},
		{"no header", nil, ""},
	}
	for _, c := range cases {
		md := metadata.New(nil)
		for _, h := range c.headers {
			md.Append("authorization", h)
		}
		got, err := bearerTokenFromMD(metadata.NewIncomingContext(context.Background(), md))
		if c.want == "" {
			if err == nil {
				t.Fatalf("%s: want error, got %q", c.name, got)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Fatalf("%s: got=%q err=%v", c.name, got, err)
		}
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error without incoming metadata")
	}
}
