package util

import (
	"strconv"
	"strings"
)

func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseFormBool reads an html form boolean. An empty value means false.
func ParseFormBool(value string) (bool, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	switch value {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(value)
}
