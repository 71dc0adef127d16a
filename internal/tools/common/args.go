package common

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StringArg returns the named string argument, or "" when absent or not a string.
func StringArg(request mcp.CallToolRequest, name string) string {
	v, _ := request.GetArguments()[name].(string)
	return strings.TrimSpace(v)
}

// BoolArg returns the named boolean argument, or def when absent.
func BoolArg(request mcp.CallToolRequest, name string, def bool) bool {
	switch v := request.GetArguments()[name].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// NumberArg returns the named numeric argument, or def when absent.
// JSON numbers arrive as float64.
func NumberArg(request mcp.CallToolRequest, name string, def float64) float64 {
	switch v := request.GetArguments()[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// StringListArg parses a parameter that can be either a comma or space
// separated string or an array of strings. An absent parameter yields nil.
func StringListArg(request mcp.CallToolRequest, name string) ([]string, error) {
	param, ok := request.GetArguments()[name]
	if !ok || param == nil {
		return nil, nil
	}

	var result []string
	switch v := param.(type) {
	case string:
		result = strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' '
		})
	case []interface{}:
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			str = strings.TrimSpace(str)
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
			}
			result = append(result, str)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}
	return result, nil
}
