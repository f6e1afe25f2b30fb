package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"fitpass/internal/logger"
	"fitpass/internal/metrics"
	"fitpass/internal/payout"
)

const (
	queueKey       = "payout_reports"
	failedQueueKey = "payout_reports:failed"
	maxTries       = 3
)

// ReportJob is one payout run summary waiting to be mailed to operations.
type ReportJob struct {
	Report  payout.RunReport `json:"report"`
	Tries   int              `json:"tries"`
	Created time.Time        `json:"created"`
}

type Service struct {
	redis    *redis.Client
	opsEmail string
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
}

func New(opsEmail, fromEmail, fromName, smtpHost, smtpPort, smtpUser, smtpPass, redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		opsEmail: opsEmail,
		from:     fromEmail,
		fromName: fromName,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		smtpUser: smtpUser,
		smtpPass: smtpPass,
	}
}

// Enqueue queues a run report. Delivery happens asynchronously so a slow or
// dead SMTP server never blocks the payout run itself.
func (s *Service) Enqueue(ctx context.Context, report payout.RunReport) error {
	job := ReportJob{
		Report:  report,
		Tries:   0,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal report job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Errorf("Failed to queue report for period %s: %v", report.Period, err)
		return err
	}

	logger.Infof("Payout report queued for period %s", report.Period)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Report service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Report service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}
	metrics.ReportQueueLength.Set(float64(s.QueueLength(ctx)))

	var job ReportJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad report data: %v", err)
		return
	}

	job.Tries++
	logger.Infof("Sending payout report for %s (attempt %d)", job.Report.Period, job.Tries)
	if err := s.sendNow(job); err != nil {
		logger.Errorf("Failed to send report for %s: %v", job.Report.Period, err)

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
			logger.Infof("Retrying report for %s (attempt %d)", job.Report.Period, job.Tries+1)
		} else {
			logger.Errorf("Report for %s failed after %d attempts", job.Report.Period, maxTries)
			s.saveFailed(job, err)
			metrics.RecordReport("failed")
		}
		return
	}

	metrics.RecordReport("sent")
	logger.Infof("Payout report sent for period %s", job.Report.Period)
}

func (s *Service) sendNow(job ReportJob) error {
	r := job.Report

	subject := fmt.Sprintf("Payout run %s: %d paid, %d failed, %d deferred",
		r.Period, r.TransfersCompleted, r.TransfersFailed, r.TransfersDeferred)

	body := fmt.Sprintf(`Payout run for period %s

Memberships processed: %d
Transfers completed:   %d
Transfers skipped:     %d
Transfers failed:      %d
Transfers deferred:    %d
Total paid out:        %d cents

Started:  %s
Finished: %s
`, r.Period, r.Memberships, r.TransfersCompleted, r.TransfersSkipped,
		r.TransfersFailed, r.TransfersDeferred, r.TotalPaidCents,
		r.StartedAt.Format(time.RFC3339), r.FinishedAt.Format(time.RFC3339))

	if len(r.Errors) > 0 {
		body += "\nErrors:\n"
		for _, e := range r.Errors {
			body += fmt.Sprintf("  user %d gym %d: %s\n", e.UserID, e.GymID, e.Reason)
		}
	}

	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", s.opsEmail)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "\r\n" + body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{s.opsEmail}, []byte(message))
}

func (s *Service) saveFailed(job ReportJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
	logger.Errorf("Report moved to failed queue: period %s", job.Report.Period)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
