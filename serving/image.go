package serving

import "strings"

// Image is a parsed container image reference, split into the
// registry part and the repository path (with tag or digest).
type Image struct {
	Registry string
	Path     string
}

// ParseImage splits an image reference into registry and path. The
// first segment counts as a registry only when it looks like a host:
// it contains a dot or a port, or is "localhost". Everything else is
// a bare Docker Hub style reference with no registry part.
func ParseImage(ref string) Image {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return Image{Path: ref}
	}
	head := ref[:idx]
	if strings.ContainsAny(head, ".:") || head == "localhost" {
		return Image{Registry: head, Path: ref[idx+1:]}
	}
	return Image{Path: ref}
}

// Resolve rewrites the image to route through the given registry.
// An empty registry leaves the reference untouched. This is a pure
// string transform, no network calls.
func (i Image) Resolve(registry string) string {
	if registry == "" {
		return i.String()
	}
	return strings.TrimSuffix(registry, "/") + "/" + i.Path
}

func (i Image) String() string {
	if i.Registry == "" {
		return i.Path
	}
	return i.Registry + "/" + i.Path
}
