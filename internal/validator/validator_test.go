package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type answerMsg struct {
	Index  *int   `json:"index" binding:"required,min=0"`
	Answer string `json:"answer" binding:"max=5"`
}

func TestValidateStruct(t *testing.T) {
	Setup()

	zero := 0
	assert.Nil(t, ValidateStruct(&answerMsg{Index: &zero, Answer: "A"}))

	fields := ValidateStruct(&answerMsg{Answer: "too long"})
	assert.Contains(t, fields, "index")
	assert.Contains(t, fields, "answer")

	neg := -1
	fields = ValidateStruct(&answerMsg{Index: &neg})
	assert.Contains(t, fields["index"], "0")
}
