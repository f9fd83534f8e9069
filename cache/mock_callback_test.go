package cache

import (
	. "github.com/onsi/ginkgo"
	"github.com/stretchr/testify/mock"
)

type MockCallback struct {
	mock.Mock
}

func (m *MockCallback) Shrinked(n *node[string, int]) {
	By("Shrinked " + n.key)
	m.Called(n)
}

func (m *MockCallback) Evict(key string, value int) {
	By("Evict " + key)
	m.Called(key, value)
}
