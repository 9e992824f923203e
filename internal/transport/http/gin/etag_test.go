package httpgin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestETagMatches(t *testing.T) {
	tag := weakETag([]byte(`[{"id":"E1"}]`))
	strong := tag[len("W/"):]

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"empty", "", false},
		{"exact", tag, true},
		{"strong form", strong, true},
		{"in list", `"abc", ` + tag, true},
		{"wildcard", "*", true},
		{"other", `W/"abc"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, etagMatches(tt.header, tag))
		})
	}
}
