package mail

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"acorn/config"
	"acorn/log"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/dm"

	eParser "github.com/go-errors/errors"
)

// sender is satisfied by *dm.Client.
type sender interface {
	SingleSendMail(request *dm.SingleSendMailRequest) (*dm.SingleSendMailResponse, error)
}

var dmClient sender
var enabled bool

// Init inits aliyun mail config.
func Init(enableMail bool) {
	var err error

	enabled = enableMail
	if !enableMail {
		return
	}

	if err := config.LoadAliyunMailConfig(); err != nil {
		panic(err)
	}

	mailCfg := config.GetAliyunMailConfig()

	dmClient, err = dm.NewClientWithAccessKey(
		mailCfg.Region,
		mailCfg.AccessKeyID,
		mailCfg.AccessKeySecret)

	if err != nil {
		panic(err)
	}
}

// AlertIfErr captures a panic, logs its stack and mails it.
// The panic does not propagate.
func AlertIfErr() {
	if r := recover(); r != nil {
		var err error
		switch t := r.(type) {
		case string:
			err = errors.New(t)
		case error:
			err = t
		default:
			err = fmt.Errorf("%v", t)
		}

		err = errors.New(eParser.Wrap(err, 2).ErrorStack())
		log.Error.Error(err)
		SendNotify("Error Detected", err.Error())
	}
}

// SendNotify sends mail to configured receivers.
func SendNotify(subject string, content string) {
	if !enabled {
		return
	}

	if content == "" {
		log.Printf("Mail content cannot be empty")
		debug.PrintStack()
		return
	}

	_, err := dmClient.SingleSendMail(newRequest(subject, content))
	if err != nil {
		log.Error.Errorf("Failed to send alert mail: %v", err)
	}
}

func newRequest(subject string, content string) *dm.SingleSendMailRequest {
	mailCfg := config.GetAliyunMailConfig()

	req := dm.CreateSingleSendMailRequest()
	req.AccountName = mailCfg.AccountName
	req.ReplyToAddress = requests.NewBoolean(false)
	req.AddressType = requests.NewInteger(1)
	if label := config.GetLabel(); label != "" {
		req.FromAlias = fmt.Sprintf("[%s]-acorn", label)
	} else {
		req.FromAlias = "acorn"
	}
	req.Subject = subject
	req.TextBody = content
	req.ToAddress = strings.Join(mailCfg.Receiver, ",")

	return req
}
