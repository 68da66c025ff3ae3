package postgres

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

func TestXorBytes(t *testing.T) {
	a := []byte{0xff, 0x00, 0xaa}
	b := []byte{0x0f, 0xf0, 0x55}
	want := []byte{0xf0, 0xf0, 0xff}
	got := xorBytes(a, b)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("xorBytes[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestHMACSHA256(t *testing.T) {
	key, data := []byte("key"), []byte("data")
	h := hmac.New(sha256.New, key)
	h.Write(data)
	want := h.Sum(nil)
	got := hmacSHA256(key, data)
	if string(got) != string(want) {
		t.Fatalf("hmacSHA256 mismatch")
	}
}

func TestParseServerFirst(t *testing.T) {
	msg := "r=clientnonceservernonce,s=c29tZXNhbHQ=,i=4096"
	nonce, salt, iterations, err := parseServerFirst(msg)
	if err != nil {
		t.Fatalf("parseServerFirst: %v", err)
	}
	if nonce != "clientnonceservernonce" {
		t.Fatalf("nonce = %q", nonce)
	}
	if string(salt) != "somesalt" {
		t.Fatalf("salt = %q", salt)
	}
	if iterations != 4096 {
		t.Fatalf("iterations = %d", iterations)
	}
}

func TestSASLEscapeUsername(t *testing.T) {
	if got := saslEscapeUsername("us=er,two"); got != "us=3Der=2Ctwo" {
		t.Fatalf("got %q", got)
	}
}

func TestMD5PasswordHash(t *testing.T) {
	got := md5PasswordHash("alice", "p", [4]byte{1, 2, 3, 4})
	if len(got) != 3+32 || got[:3] != "md5" {
		t.Fatalf("unexpected md5 password hash shape: %q", got)
	}
	// deterministic
	if again := md5PasswordHash("alice", "p", [4]byte{1, 2, 3, 4}); again != got {
		t.Fatalf("md5PasswordHash is not deterministic")
	}
}

func TestBuildSelectRendersProjectionFilterAndLimit(t *testing.T) {
	limit := int64(5)
	sel := sqlil.Select{
		Entity: "widgets",
		Projection: []sqlil.Projection{
			{Expr: sqlil.Attribute{Entity: "widgets", Name: "id"}},
			{Expr: sqlil.Attribute{Entity: "widgets", Name: "name"}},
		},
		Where: []sqlil.Expr{
			sqlil.BinaryOp{Op: sqlil.BinaryEq, Left: sqlil.Attribute{Entity: "widgets", Name: "owner"}, Right: sqlil.Parameter{ID: 1, Type: types.Utf8String(0, "")}},
		},
		Limit: &limit,
	}
	g := &sqlGen{}
	sql, err := g.buildSelect(sel)
	if err != nil {
		t.Fatalf("buildSelect: %v", err)
	}
	const want = `SELECT "id", "name" FROM "widgets" WHERE ("owner" = $1) LIMIT 5`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(g.paramOrder) != 1 || g.paramOrder[0] != 1 {
		t.Fatalf("paramOrder = %v", g.paramOrder)
	}
}

func TestConstantLiteralEscapesQuotes(t *testing.T) {
	lit, err := constantLiteral(types.StringValue{Value: "O'Brien"})
	if err != nil {
		t.Fatalf("constantLiteral: %v", err)
	}
	if lit != `'O''Brien'` {
		t.Fatalf("lit = %q", lit)
	}
}

func TestCompileQueryAssignsSequentialPlaceholders(t *testing.T) {
	del := sqlil.Delete{
		Entity: "widgets",
		Where: []sqlil.Expr{
			sqlil.BinaryOp{Op: sqlil.BinaryEq, Left: sqlil.Attribute{Name: "id"}, Right: sqlil.Parameter{ID: 7, Type: types.Int64()}},
		},
	}
	bq, err := Compiler{}.CompileQuery(nil, nil, nil, del)
	if err != nil {
		t.Fatalf("CompileQuery: %v", err)
	}
	cq := bq.(*compiledQuery)
	if cq.sql != `DELETE FROM "widgets" WHERE ("id" = $1)` {
		t.Fatalf("sql = %q", cq.sql)
	}
	if len(cq.structure) != 1 || cq.structure[0].ID != 7 {
		t.Fatalf("structure = %+v", cq.structure)
	}
}
