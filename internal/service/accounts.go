package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

type AccountService struct {
	repo store.Repository
	log  logrus.FieldLogger
}

func NewAccountService(repo store.Repository, log logrus.FieldLogger) *AccountService {
	return &AccountService{repo: repo, log: log}
}

// Open creates an account with a zero balance. Funds only arrive through
// transfers and coupon redemptions.
func (s *AccountService) Open(ctx context.Context, in domain.AccountCreate) (*domain.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.Name == "" {
		return nil, domain.ErrInvalidAccount
	}

	account, err := s.repo.CreateAccount(ctx, in)
	logOutcome(s.log.WithField("phone_number_set", in.PhoneNumber != ""), "Account open", err)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, id int64) (*domain.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *AccountService) Balance(ctx context.Context, id int64) (domain.Amount, error) {
	return s.repo.GetBalance(ctx, id)
}
