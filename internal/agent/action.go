package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// 动作协议：模型每步回一个 JSON 对象，action 字段决定分支。
const (
	actionNavigate = "navigate"
	actionClick    = "click"
	actionType     = "type"
	actionWait     = "wait"
	actionExtract  = "extract"
	actionFinish   = "finish"
)

const (
	defaultWaitSeconds = 3
	maxWaitSeconds     = 15
)

type action struct {
	Name     string
	URL      string
	Selector string
	Text     string
	Submit   bool
	Seconds  int
	Message  string
}

// parseAction 校验并解析动作 JSON。错误信息会原样回灌给模型。
func parseAction(raw string) (action, error) {
	if !gjson.Valid(raw) {
		return action{}, fmt.Errorf("action is not valid JSON")
	}
	doc := gjson.Parse(raw)
	name := strings.ToLower(strings.TrimSpace(doc.Get("action").String()))
	if name == "" {
		return action{}, fmt.Errorf(`missing "action" field`)
	}
	act := action{Name: name}
	switch name {
	case actionNavigate:
		act.URL = strings.TrimSpace(doc.Get("url").String())
		if act.URL == "" {
			return action{}, fmt.Errorf(`navigate requires "url"`)
		}
	case actionClick:
		act.Selector = strings.TrimSpace(doc.Get("selector").String())
		if act.Selector == "" {
			return action{}, fmt.Errorf(`click requires "selector"`)
		}
	case actionType:
		act.Selector = strings.TrimSpace(doc.Get("selector").String())
		if act.Selector == "" {
			return action{}, fmt.Errorf(`type requires "selector"`)
		}
		text := doc.Get("text")
		if !text.Exists() {
			return action{}, fmt.Errorf(`type requires "text"`)
		}
		act.Text = text.String()
		act.Submit = doc.Get("submit").Bool()
	case actionWait:
		act.Selector = strings.TrimSpace(doc.Get("selector").String())
		act.Seconds = int(doc.Get("seconds").Int())
		if act.Seconds <= 0 {
			act.Seconds = defaultWaitSeconds
		}
		if act.Seconds > maxWaitSeconds {
			act.Seconds = maxWaitSeconds
		}
	case actionExtract:
		// 无参数：下一轮观察会带上完整页面文本
	case actionFinish:
		act.Message = strings.TrimSpace(doc.Get("message").String())
		if act.Message == "" {
			return action{}, fmt.Errorf(`finish requires a non-empty "message"`)
		}
	default:
		return action{}, fmt.Errorf("unknown action %q", name)
	}
	return act, nil
}

// apply 在浏览器上执行非 finish 动作。
func apply(b Browser, act action) error {
	switch act.Name {
	case actionNavigate:
		return b.Navigate(act.URL)
	case actionClick:
		return b.Click(act.Selector)
	case actionType:
		return b.Type(act.Selector, act.Text, act.Submit)
	case actionWait:
		if act.Selector != "" {
			return b.WaitVisible(act.Selector, time.Duration(act.Seconds)*time.Second)
		}
		return b.Sleep(time.Duration(act.Seconds) * time.Second)
	case actionExtract:
		return nil
	default:
		return fmt.Errorf("unsupported action %q", act.Name)
	}
}
