package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTaskMessage(t *testing.T) {
	assert.Equal(t, &TaskMessage{TaskID: "rID"},
		NewTaskMessage("rID"))
}
