package domainsplit

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKWriter(t *testing.T) {
	uri := os.Getenv("KAFKA_URI")
	if uri == "" {
		t.Skip("KAFKA_URI not set")
	}
	w, err := NewKWriter(EventTopic, uri)
	assert.NoError(t, err)
	defer w.Close()
	err = w.Write("test", []byte(`{"name":"test"}`))
	assert.NoError(t, err)
}
