package medium

import (
	"context"
	"fmt"
	"net/mail"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go/aws"

	"wisdomwalk/config"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/templates"
	"wisdomwalk/utilities"
)

// MailJob is one notification email waiting to be sent.
type MailJob struct {
	To           string
	Notification *entities.Notification
}

type EmailClient struct {
	client *sesv2.Client
	conf   config.Email
	queue  chan MailJob
}

func NewEmailClient(ctx context.Context, emailConfig config.Email) (*EmailClient, error) {
	log := utilities.NewLogger("NewEmailClient")

	amazonConfiguration, err :=
		awsConfig.LoadDefaultConfig(
			ctx,
			awsConfig.WithRegion(emailConfig.Region),
			awsConfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					emailConfig.Username, emailConfig.Password, "",
				),
			),
		)
	if err != nil {
		log.WithError(err).Error("failed to create amazon config")
		return nil, err
	}

	return &EmailClient{
		client: sesv2.NewFromConfig(amazonConfiguration),
		conf:   emailConfig,
		queue:  make(chan MailJob, 100),
	}, nil
}

// Enqueue never blocks the caller, a full queue drops the job.
func (ec *EmailClient) Enqueue(job MailJob) bool {
	select {
	case ec.queue <- job:
		return true
	default:
		utilities.NewLogger("Email.Enqueue").Warnf("email queue full, dropping mail to %s", job.To)
		return false
	}
}

func (ec *EmailClient) SpawnSender(ctx context.Context) {
	log := utilities.NewLogger("Email.SpawnSender")

	for {
		select {
		case job := <-ec.queue:
			if _, err := mail.ParseAddress(job.To); err != nil {
				log.WithError(err).Debugf("skipping invalid address %q", job.To)
				continue
			}

			body, err := utilities.TemplateRendering(templates.NotificationTemplate, map[string]string{
				"Heading":    job.Notification.Title,
				"Message":    job.Notification.Message,
				"Link":       ec.conf.RedirectLink,
				"SenderName": ec.conf.SenderName,
			})
			if err != nil {
				log.WithError(err).Error("failed to render email template")
				continue
			}

			from := ec.conf.From
			if ec.conf.SenderName != "" {
				from = fmt.Sprintf("%s <%s>", ec.conf.SenderName, ec.conf.From)
			}

			if err := ec.SendMail(ctx, from, job.To, job.Notification.Title, body.String()); err != nil {
				log.WithError(err).Errorf("failed to email %s", job.Notification.Recipient)
				continue
			}

		case <-ctx.Done():
			log.Infof("Shutting down")
			return
		}
	}
}

func (ec *EmailClient) SendMail(ctx context.Context, from, to, subject, body string) error {
	log := utilities.NewLoggerWithFields("SendMail", map[string]interface{}{
		"to":   to,
		"from": from,
	})

	charset := aws.String("UTF-8")

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Charset: charset,
					Data:    aws.String(subject),
				},
				Body: &types.Body{
					Html: &types.Content{
						Charset: charset,
						Data:    aws.String(body),
					},
				},
			},
		},
		FromEmailAddress: aws.String(from),
	}

	_, err := ec.client.SendEmail(ctx, input)
	if err != nil {
		log.WithError(err).Error("failed to send email")
		return err
	}
	log.Debug("Email sent!")

	return nil
}
