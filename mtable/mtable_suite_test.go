package mtable_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestMTable(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "mtable suite")
}
