package engine

// Helpers for reading persisted engine configuration documents, which
// arrive as generic maps after the schema merge.

func boolOpt(doc map[string]interface{}, key string, def bool) bool {
	v, ok := doc[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func stringOpt(doc map[string]interface{}, key string, def string) string {
	v, ok := doc[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

func intOpt(doc map[string]interface{}, key string, def int) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringListOpt(doc map[string]interface{}, key string) []string {
	v, ok := doc[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
