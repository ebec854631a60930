package runner

import (
	"context"
	"time"

	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/stretchr/testify/mock"
)

// MockPullSource is a mock type for the PullSource type
type MockPullSource struct {
	mock.Mock
}

// Ack provides a mock function with given fields: ctx, group, messageId
func (_m *MockPullSource) Ack(ctx context.Context, group string, messageId string) error {
	ret := _m.Called(ctx, group, messageId)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		r0 = rf(ctx, group, messageId)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Receive provides a mock function with given fields: ctx, pullDuration, batchSize, group, consumerName
func (_m *MockPullSource) Receive(ctx context.Context, pullDuration time.Duration, batchSize int, group string, consumerName string) ([]contracts.Message, error) {
	ret := _m.Called(ctx, pullDuration, batchSize, group, consumerName)

	var r0 []contracts.Message
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, time.Duration, int, string, string) ([]contracts.Message, error)); ok {
		return rf(ctx, pullDuration, batchSize, group, consumerName)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]contracts.Message)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Reject provides a mock function with given fields: ctx, group, messageId, requeueDelay
func (_m *MockPullSource) Reject(ctx context.Context, group string, messageId string, requeueDelay time.Duration) error {
	ret := _m.Called(ctx, group, messageId, requeueDelay)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, time.Duration) error); ok {
		r0 = rf(ctx, group, messageId, requeueDelay)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockPullSource creates a new instance of MockPullSource. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockPullSource(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPullSource {
	m := &MockPullSource{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockHeartBeatSource is a MockPullSource that also implements HeartBeater
type MockHeartBeatSource struct {
	MockPullSource
}

// HeartBeat provides a mock function with given fields: ctx, group, consumerName, messageID
func (_m *MockHeartBeatSource) HeartBeat(ctx context.Context, group string, consumerName string, messageID string) error {
	ret := _m.Called(ctx, group, consumerName, messageID)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) error); ok {
		r0 = rf(ctx, group, consumerName, messageID)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func NewMockHeartBeatSource(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockHeartBeatSource {
	m := &MockHeartBeatSource{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
