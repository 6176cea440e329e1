package policy

import (
	"fmt"
	"time"

	"bountyline/internal/domain"
)

const (
	StrategyThreshold    = "threshold"
	StrategyDefaultSplit = "default-split"
)

// ThresholdStrategy adopts a submission once approvals reach a threshold
// with approvals strictly ahead of rejections, and removes it once
// rejections reach a removal threshold.
type ThresholdStrategy struct {
	ApprovalsToAdopt   int
	RejectionsToRemove int
}

func (s *ThresholdStrategy) Name() string { return StrategyThreshold }

func (s *ThresholdStrategy) Evaluate(submissionID int64, approves, rejects, totalReviews int, elapsed time.Duration) Evaluation {
	if rejects >= s.RejectionsToRemove {
		return Evaluation{
			NewStatus:    domain.SubmissionRemoved,
			ShouldChange: true,
			Reason:       fmt.Sprintf("%d rejections reached removal threshold %d", rejects, s.RejectionsToRemove),
		}
	}
	if approves >= s.ApprovalsToAdopt && approves > rejects {
		return Evaluation{
			NewStatus:    domain.SubmissionAdopted,
			ShouldChange: true,
			Reason:       fmt.Sprintf("%d approvals reached adoption threshold %d", approves, s.ApprovalsToAdopt),
		}
	}
	if totalReviews > 0 {
		return Evaluation{NewStatus: domain.SubmissionUnderReview, ShouldChange: false}
	}
	return Evaluation{}
}

func (s *ThresholdStrategy) ShouldCompleteTask(taskID, adoptedSubmissionID int64) bool {
	return adoptedSubmissionID > 0
}

// DefaultSplitStrategy splits the reward by fixed basis points; whatever the
// three shares leave behind goes back to the publisher. Reviewer rewards are
// an equal split of the pool for accurate reviewers, nothing for inaccurate
// ones.
type DefaultSplitStrategy struct {
	CreatorBps  int64
	ReviewerBps int64
	PlatformBps int64
}

func (s *DefaultSplitStrategy) Name() string { return StrategyDefaultSplit }

func (s *DefaultSplitStrategy) CalculateDistribution(taskID, totalReward, adoptedSubmissionID int64, reviewerCount int) Distribution {
	creator := totalReward * s.CreatorBps / 10000
	reviewer := totalReward * s.ReviewerBps / 10000
	platform := totalReward * s.PlatformBps / 10000
	if reviewerCount == 0 {
		// No reviewer pool to pay out; hand it back to the publisher.
		reviewer = 0
	}
	refund := totalReward - creator - platform - reviewer
	return Distribution{
		CreatorShare:    creator,
		ReviewerShare:   reviewer,
		PlatformShare:   platform,
		PublisherRefund: refund,
	}
}

func (s *DefaultSplitStrategy) CalculateReviewerReward(taskID int64, reviewer string, totalReviewerPool int64, reviewerCount int, wasAccurate bool) int64 {
	if !wasAccurate || reviewerCount == 0 {
		return 0
	}
	return totalReviewerPool / int64(reviewerCount)
}
