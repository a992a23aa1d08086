package scope

// Mask returns the policy's replacement token when key matches the sensitive
// pattern, otherwise value unchanged. Masking is key-driven: the value itself
// is never inspected. Idempotent, since the replacement token does not match
// the sensitive pattern.
func Mask(key, value string, p *Policy) string {
	if p.pattern().MatchString(key) {
		return p.MaskReplacement
	}
	return value
}

// MaskBody redacts an entire body sample when the sensitive pattern matches
// anywhere inside it. Body samples are opaque text, so there is no key to
// drive a finer-grained decision; the whole sample is replaced.
func MaskBody(sample string, p *Policy) string {
	if p.pattern().MatchString(sample) {
		return p.MaskReplacement
	}
	return sample
}
