package features

import "testing"

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Record
	}{
		{
			name: "ip host with deep path",
			url:  "http://192.168.0.1/a/b/c/d",
			want: Record{
				URLLen: Int(26), HostLen: Int(11), DotCount: Int(3), PathDepth: Int(4),
				HasIPHost: Bool(true), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "bare domain defaults path to slash",
			url:  "http://example.com",
			want: Record{
				URLLen: Int(18), HostLen: Int(11), DotCount: Int(1), PathDepth: Int(1),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "userinfo and port",
			url:  "https://user@Login.Example.com:8443/x",
			want: Record{
				URLLen: Int(37), HostLen: Int(17), DotCount: Int(2), PathDepth: Int(1),
				HasIPHost: Bool(false), HasAt: Bool(true), HasPort: Bool(true),
			},
		},
		{
			name: "no scheme is all path",
			url:  "example.com/a/b",
			want: Record{
				URLLen: Int(15), HostLen: Int(0), DotCount: Int(0), PathDepth: Int(2),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "empty string",
			url:  "",
			want: Record{
				URLLen: Int(0), HostLen: Int(0), DotCount: Int(0), PathDepth: Int(1),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "bad escape falls back to manual split",
			url:  "http://bad.example.com/%zz/a",
			want: Record{
				URLLen: Int(28), HostLen: Int(15), DotCount: Int(2), PathDepth: Int(2),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "non numeric port is not a port",
			url:  "http://example.com:abc/",
			want: Record{
				URLLen: Int(23), HostLen: Int(11), DotCount: Int(1), PathDepth: Int(1),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "opaque with port-like scheme",
			url:  "localhost:8080/a/b/c/d",
			want: Record{
				URLLen: Int(22), HostLen: Int(0), DotCount: Int(0), PathDepth: Int(4),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "opaque javascript",
			url:  "javascript:x/a/b/c/d",
			want: Record{
				URLLen: Int(20), HostLen: Int(0), DotCount: Int(0), PathDepth: Int(4),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "opaque data url",
			url:  "data:text/html,<a/b/c/d>",
			want: Record{
				URLLen: Int(24), HostLen: Int(0), DotCount: Int(0), PathDepth: Int(4),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "tab inside host is dropped",
			url:  "http://exa\tmple.com/",
			want: Record{
				URLLen: Int(20), HostLen: Int(11), DotCount: Int(1), PathDepth: Int(1),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "leading space and newlines",
			url:  " \x01http://example.com/a\r\n/b",
			want: Record{
				URLLen: Int(26), HostLen: Int(11), DotCount: Int(1), PathDepth: Int(2),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
		{
			name: "runes not bytes",
			url:  "http://пример.рф/",
			want: Record{
				URLLen: Int(17), HostLen: Int(9), DotCount: Int(1), PathDepth: Int(1),
				HasIPHost: Bool(false), HasAt: Bool(false), HasPort: Bool(false),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractURL(tc.url)
			if len(got) != len(tc.want) {
				t.Errorf("got %d features, want %d", len(got), len(tc.want))
			}
			for k, want := range tc.want {
				if got[k] != want {
					t.Errorf("Feature '%s': got %v, want %v", k, got[k], want)
				}
			}
		})
	}
}

func TestIPHostPattern(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"http://10.0.0.1/", true},
		{"http://999.999.999.999/", true},
		{"http://10.0.0/", false},
		{"http://10.0.0.1.5/", false},
		{"http://0x7f.0.0.1/", false},
		{"http://1234.0.0.1/", false},
		{"http://[::1]/", false},
		{"http://10.0.0.1:8080/", true},
	}

	for _, tc := range tests {
		got := ExtractURL(tc.host).Flag(HasIPHost)
		if got != tc.want {
			t.Errorf("%s: has_ip_host got %v, want %v", tc.host, got, tc.want)
		}
	}
}

func TestExtractHost(t *testing.T) {
	got := ExtractHost("https://a.b.c.example.com:444/path")
	if got.Number(HostLen) != 17 {
		t.Errorf("host_len got %v, want 17", got.Number(HostLen))
	}
	if got.Number(SubdomainCount) != 4 {
		t.Errorf("subdomain_count got %v, want 4", got.Number(SubdomainCount))
	}
	if !got.Flag(HasPort) {
		t.Error("has_port should be true")
	}
	if len(got) != 3 {
		t.Errorf("host record should have 3 keys, got %d", len(got))
	}
}

func TestHostAndURLAgree(t *testing.T) {
	for _, raw := range []string{
		"http://example.com",
		"http://x.y.z.example.com:8080/a",
		"not a url at all",
		"http://%zz.example.com/",
		"//cdn.example.net/lib.js",
		"localhost:8080/a/b/c/d",
		"javascript:x/a/b/c/d",
		"data:text/html,<a/b/c/d>",
		"http://exa\tmple.com:81/",
	} {
		u, h := ExtractURL(raw), ExtractHost(raw)
		if u[HostLen] != h[HostLen] || u[HasPort] != h[HasPort] {
			t.Errorf("%q: url and host extractors disagree: %v / %v", raw, u, h)
		}
		if u[DotCount] != h[SubdomainCount] {
			t.Errorf("%q: dot_count %v != subdomain_count %v", raw, u[DotCount], h[SubdomainCount])
		}
	}
}

func TestHostname(t *testing.T) {
	if got := Hostname("https://WWW.Example.COM/login"); got != "www.example.com" {
		t.Errorf("got %q", got)
	}
	if got := Hostname("::not-a-url::"); got != "" {
		t.Errorf("garbage should have no host, got %q", got)
	}
}

func BenchmarkExtractURL(b *testing.B) {
	raw := "https://secure-login.accounts.example.com.evil.test/a/b/c/d/verify?session=1234567890&next=%2Fhome"
	for i := 0; i < b.N; i++ {
		_ = ExtractURL(raw)
		_ = ExtractHost(raw)
	}
}
