package storage

import "testing"

func TestObjectKeys(t *testing.T) {
	if got := SourceObjectKey("job-1"); got != "uploads/job-1/source" {
		t.Fatalf("expected uploads/job-1/source, got %s", got)
	}

	cases := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "outputs/job-1/thumb.jpg"},
		{prefix: " renders/ ", want: "renders/job-1/thumb.jpg"},
		{prefix: "/cdn/", want: "cdn/job-1/thumb.jpg"},
	}
	for _, tc := range cases {
		if got := OutputObjectKey(tc.prefix, "job-1", "thumb.jpg"); got != tc.want {
			t.Fatalf("prefix %q: expected %s, got %s", tc.prefix, tc.want, got)
		}
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for missing bucket")
	}

	c, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: "pixeltools", MaxObjectBytes: 1024})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Bucket() != "pixeltools" {
		t.Fatalf("expected bucket pixeltools, got %s", c.Bucket())
	}
}
