package docsync

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// inMemoryPrefix marks a tsserver path that was synthesized from a
// non-file-scheme URI.
const inMemoryPrefix = "^"

// PathFromURI converts an LSP DocumentURI into the canonical string passed
// to tsserver. file:// URIs become a POSIX-normalized filesystem path;
// anything else is encoded as
// "^/<scheme>/<authority-or-null>/<path>[#<fragment>]". A URI's query
// component is not part of the encoding and is dropped.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("docsync: parsing URI %q: %w", uri, err)
	}
	if u.Scheme == "file" || u.Scheme == "" {
		p := u.Path
		if p == "" {
			p = uri // tolerate a bare path handed in instead of a URI
		}
		return path.Clean(filepathToSlash(p)), nil
	}

	authority := u.Host
	if authority == "" {
		authority = "null"
	}
	p := u.Path
	if p == "" && u.Opaque != "" {
		// a URI with no "//" authority marker (e.g. "untitled:Untitled-1")
		// parses into Opaque rather than Path.
		p = "/" + u.Opaque
	}
	encoded := inMemoryPrefix + "/" + u.Scheme + "/" + authority + p
	if u.Fragment != "" {
		encoded += "#" + u.Fragment
	}
	return encoded, nil
}

// URIFromPath reverses PathFromURI; it is total on every path PathFromURI
// can produce, and PathFromURI(URIFromPath(p)) == p for such paths. The URI
// it returns always has the hierarchical form, so a URI with a query or an
// opaque URI such as "untitled:Untitled-1" does not come back unchanged.
func URIFromPath(p string) (string, error) {
	if !strings.HasPrefix(p, inMemoryPrefix+"/") {
		return (&url.URL{Scheme: "file", Path: p}).String(), nil
	}
	rest := strings.TrimPrefix(p, inMemoryPrefix+"/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("docsync: malformed in-memory path %q", p)
	}
	scheme := parts[0]
	remainder := parts[1]

	var fragment string
	if idx := strings.IndexByte(remainder, '#'); idx >= 0 {
		fragment = remainder[idx+1:]
		remainder = remainder[:idx]
	}
	authorityAndPath := strings.SplitN(remainder, "/", 2)
	authority := authorityAndPath[0]
	if authority == "null" {
		authority = ""
	}
	urlPath := ""
	if len(authorityAndPath) == 2 {
		urlPath = "/" + authorityAndPath[1]
	}
	u := &url.URL{Scheme: scheme, Host: authority, Path: urlPath, Fragment: fragment}
	return u.String(), nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
