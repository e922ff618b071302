package anthropic

// BuildCachedSystemBlocks constructs a system block with a cache breakpoint.
// Analyzer prompts are identical across pages of a run, so the 5m TTL is
// enough for the prefix to be reused within one run.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	if ttl == "" {
		ttl = "5m"
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
