package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
	prompts []string
}

func (m *MockProvider) ID() string { return "mock-llm" }
func (m *MockProvider) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.prompts = append(m.prompts, userPrompt)
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

type MockBrowser struct {
	mock.Mock
	url      string
	title    string
	pageText string
}

func (m *MockBrowser) Navigate(url string) error {
	args := m.Called(url)
	return args.Error(0)
}
func (m *MockBrowser) Location() (string, error)    { return m.url, nil }
func (m *MockBrowser) Title() (string, error)       { return m.title, nil }
func (m *MockBrowser) VisibleText() (string, error) { return m.pageText, nil }
func (m *MockBrowser) Click(selector string) error {
	args := m.Called(selector)
	return args.Error(0)
}
func (m *MockBrowser) Type(selector, value string, submit bool) error {
	args := m.Called(selector, value, submit)
	return args.Error(0)
}
func (m *MockBrowser) WaitVisible(selector string, timeout time.Duration) error {
	args := m.Called(selector, timeout)
	return args.Error(0)
}
func (m *MockBrowser) Sleep(d time.Duration) error {
	args := m.Called(d)
	return args.Error(0)
}

type recordingObserver struct {
	exchanges []StepExchange
}

func (r *recordingObserver) AfterStep(_ context.Context, ex StepExchange) {
	r.exchanges = append(r.exchanges, ex)
}

func newTestBrowser() *MockBrowser {
	return &MockBrowser{
		url:      "https://flights.example.com/results",
		title:    "Flight results",
		pageText: "Cape Town to Athens from ZAR 10560 round trip",
	}
}

func TestExecutor_RunFinishes(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()
	observer := &recordingObserver{}

	browser.On("Navigate", "https://flights.example.com").Return(nil)
	browser.On("Sleep", 2*time.Second).Return(nil)

	report := "RESULTS:\nAthens: ZAR 10560\nMykonos: ZAR 9299"
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"wait","seconds":2}`, nil).Once()
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Sprintf(`{"action":"finish","message":%q}`, report), nil).Once()

	exec := NewExecutor(mockLLM, observer)
	result, err := exec.Run(context.Background(), browser, Task{
		Instruction: "Find the cheapest flights",
		StartURL:    "https://flights.example.com",
		MaxSteps:    5,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, report, result.Message)
	assert.Equal(t, 2, result.StepsUsed)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, `{"action":"wait","seconds":2}`, result.Steps[0].ActionJSON)
	assert.Empty(t, result.Steps[0].Error)

	require.Len(t, observer.exchanges, 2)
	assert.Equal(t, result.RunID, observer.exchanges[0].RunID)
	assert.Equal(t, 1, observer.exchanges[0].Step)
	assert.Contains(t, observer.exchanges[0].Prompt, "Find the cheapest flights")
	assert.Contains(t, observer.exchanges[1].RawReply, "finish")

	browser.AssertExpectations(t)
	mockLLM.AssertExpectations(t)
}

func TestExecutor_NonJSONReplyConsumesStepAndEchoes(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()

	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return("I will click the search button now.", nil).Once()
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"finish","message":"RESULTS:\nAthens: ZAR 10560"}`, nil).Once()

	exec := NewExecutor(mockLLM, nil)
	result, err := exec.Run(context.Background(), browser, Task{Instruction: "Find flights", MaxSteps: 5})

	require.NoError(t, err)
	assert.Equal(t, 2, result.StepsUsed)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "your reply contained no JSON action object", result.Steps[0].Error)

	require.Len(t, mockLLM.prompts, 2)
	assert.NotContains(t, mockLLM.prompts[0], "PREVIOUS ACTION PROBLEM")
	assert.Contains(t, mockLLM.prompts[1], "PREVIOUS ACTION PROBLEM: your reply contained no JSON action object")
}

func TestExecutor_InvalidActionEchoedBack(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()

	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"navigate"}`, nil).Once()
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"finish","message":"done"}`, nil).Once()

	exec := NewExecutor(mockLLM, nil)
	result, err := exec.Run(context.Background(), browser, Task{Instruction: "Find flights", MaxSteps: 5})

	require.NoError(t, err)
	assert.Equal(t, `navigate requires "url"`, result.Steps[0].Error)
	require.Len(t, mockLLM.prompts, 2)
	assert.Contains(t, mockLLM.prompts[1], `navigate requires "url"`)
}

func TestExecutor_ActionFailureDoesNotAbortRun(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()

	browser.On("Click", "#search").Return(errors.New("node not found")).Once()
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"click","selector":"#search"}`, nil).Once()
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"finish","message":"done"}`, nil).Once()

	exec := NewExecutor(mockLLM, nil)
	result, err := exec.Run(context.Background(), browser, Task{Instruction: "Find flights", MaxSteps: 5})

	require.NoError(t, err)
	assert.Contains(t, result.Steps[0].Error, "action click failed")
	assert.Contains(t, mockLLM.prompts[1], "action click failed: node not found")
	browser.AssertExpectations(t)
}

func TestExecutor_ExtractExpandsNextObservation(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()
	browser.pageText = strings.Repeat("x", 2600) + " TAIL_FARE ZAR 9299"

	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"extract"}`, nil).Once()
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"finish","message":"done"}`, nil).Once()

	exec := NewExecutor(mockLLM, nil)
	_, err := exec.Run(context.Background(), browser, Task{Instruction: "Find flights", MaxSteps: 5})

	require.NoError(t, err)
	require.Len(t, mockLLM.prompts, 2)
	assert.NotContains(t, mockLLM.prompts[0], "TAIL_FARE")
	assert.Contains(t, mockLLM.prompts[1], "TAIL_FARE")
}

func TestExecutor_BudgetExhausted(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()

	browser.On("Sleep", mock.Anything).Return(nil)
	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"action":"wait","seconds":1}`, nil)

	exec := NewExecutor(mockLLM, nil)
	result, err := exec.Run(context.Background(), browser, Task{Instruction: "Find flights", MaxSteps: 3})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepBudgetExhausted))
	var sessErr *SessionError
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, "budget", sessErr.Stage)
	assert.Equal(t, 3, result.StepsUsed)
	assert.Len(t, result.Steps, 3)
}

func TestExecutor_ProviderFailure(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()

	mockLLM.On("Call", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("model overloaded")).Once()

	exec := NewExecutor(mockLLM, nil)
	_, err := exec.Run(context.Background(), browser, Task{Instruction: "Find flights", MaxSteps: 5})

	require.Error(t, err)
	var sessErr *SessionError
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, "llm", sessErr.Stage)
	assert.ErrorContains(t, err, "model overloaded")
}

func TestExecutor_NavigateFailure(t *testing.T) {
	mockLLM := new(MockProvider)
	browser := newTestBrowser()
	browser.On("Navigate", "https://flights.example.com").Return(errors.New("dns failure"))

	exec := NewExecutor(mockLLM, nil)
	_, err := exec.Run(context.Background(), browser, Task{
		Instruction: "Find flights",
		StartURL:    "https://flights.example.com",
		MaxSteps:    5,
	})

	require.Error(t, err)
	var sessErr *SessionError
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, "navigate", sessErr.Stage)
}

func TestParseAction_WaitDefaultsAndCaps(t *testing.T) {
	act, err := parseAction(`{"action":"wait"}`)
	require.NoError(t, err)
	assert.Equal(t, defaultWaitSeconds, act.Seconds)

	act, err = parseAction(`{"action":"wait","seconds":120}`)
	require.NoError(t, err)
	assert.Equal(t, maxWaitSeconds, act.Seconds)

	act, err = parseAction(`{"action":"wait","selector":"#results","seconds":8}`)
	require.NoError(t, err)
	assert.Equal(t, "#results", act.Selector)
	assert.Equal(t, 8, act.Seconds)
}

func TestParseAction_Rejections(t *testing.T) {
	cases := []struct {
		raw     string
		wantErr string
	}{
		{`{"action":"teleport"}`, `unknown action "teleport"`},
		{`{"url":"https://x"}`, `missing "action" field`},
		{`{"action":"click"}`, `click requires "selector"`},
		{`{"action":"type","selector":"#q"}`, `type requires "text"`},
		{`{"action":"finish","message":"  "}`, `finish requires a non-empty "message"`},
	}
	for _, tc := range cases {
		_, err := parseAction(tc.raw)
		require.Error(t, err, tc.raw)
		assert.Equal(t, tc.wantErr, err.Error(), tc.raw)
	}
}
