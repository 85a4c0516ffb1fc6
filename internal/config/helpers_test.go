package config

import (
	"fmt"
	"strings"
)

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }

func replace(s, old, new string) string { return strings.Replace(s, old, new, 1) }
