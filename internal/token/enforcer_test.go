package token

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/internal/blacklist"
	"stablegate/internal/identity"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
)

const (
	issuerAddr    domain.Address = "issuerTreasury12"
	freezeAddr    domain.Address = "freezeAuthority1"
	delegateAddr  domain.Address = "permDelegate1234"
	forfeitAddr   domain.Address = "forfeitureVault1"
	aliceAddr     domain.Address = "aliceWallet12345"
	bobAddr       domain.Address = "bobWallet1234567"
	strangerAddr  domain.Address = "strangerAddr1234"
	regulatorAddr domain.Address = "bafinRegulator12"
)

// openReserve admits every issuance; tests that need a reserve refusal swap
// in a closed guard.
type openReserve struct{}

func (openReserve) CheckIssuance(context.Context, domain.Amount) error { return nil }

type closedReserve struct{}

func (closedReserve) CheckIssuance(context.Context, domain.Amount) error {
	return dErrors.New(dErrors.CodeInsufficientReserve, "issuance would exceed proven reserves")
}

type TokenServiceSuite struct {
	suite.Suite

	now       time.Time
	registry  domain.Actor
	issuer    domain.Actor
	freezer   domain.Actor
	delegate  domain.Actor
	regulator domain.Actor
	identity  *identity.Service
	blacklist *blacklist.Service
	service   *Service
}

func TestTokenServiceSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceSuite))
}

func (s *TokenServiceSuite) SetupTest() {
	s.now = time.Now().Truncate(time.Second)
	clock := func() time.Time { return s.now }

	s.registry = domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)
	s.issuer = domain.NewActor(issuerAddr, domain.CapIssuer)
	s.freezer = domain.NewActor(freezeAddr, domain.CapFreezeAuthority)
	s.delegate = domain.NewActor(delegateAddr, domain.CapPermanentDelegate)
	s.regulator = domain.NewActor(regulatorAddr, domain.CapRegulator)

	auditor := audit.NewPublisher(audit.NewInMemoryStore())
	logger := slog.Default()

	s.identity = identity.NewService(identity.NewInMemoryStore(), auditor, logger, identity.WithClock(clock))
	s.blacklist = blacklist.NewService(blacklist.NewInMemoryStore(), auditor, logger, blacklist.WithClock(clock))

	s.service = NewService(
		NewInMemoryPolicyStore(),
		NewInMemoryLedger(),
		s.identity,
		s.blacklist,
		auditor,
		logger,
		WithClock(clock),
		WithReserveGuard(openReserve{}),
	)

	ctx := context.Background()
	s.Require().NoError(s.service.InitPolicy(ctx, s.registry,
		DefaultPolicy(issuerAddr, freezeAddr, delegateAddr)))

	s.registerVerified(aliceAddr, "DE89370400440532013000", domain.LevelStandard)
	s.registerVerified(bobAddr, "FR1420041010050500013M02606", domain.LevelBasic)
}

func (s *TokenServiceSuite) registerVerified(user domain.Address, iban string, level domain.VerificationLevel) {
	s.T().Helper()
	ctx := context.Background()
	_, err := s.identity.Register(ctx, s.registry, identity.RegisterRequest{
		User:        user,
		RoutingCode: "10070000",
		IBAN:        iban,
		Country:     "DE",
	})
	s.Require().NoError(err)
	_, err = s.identity.UpdateStatus(ctx, s.registry, user, identity.StatusVerified, level, 365)
	s.Require().NoError(err)
}

func (s *TokenServiceSuite) mint(to domain.Address, amount domain.Amount) {
	s.T().Helper()
	_, err := s.service.Mint(context.Background(), s.issuer, MintRequest{
		To:        to,
		Amount:    amount,
		Reference: "SEPA-2026-000123",
	})
	s.Require().NoError(err)
}

func (s *TokenServiceSuite) TestMint() {
	ctx := context.Background()

	s.Run("first mint thaws the new account", func() {
		account, err := s.service.Mint(ctx, s.issuer, MintRequest{
			To:        aliceAddr,
			Amount:    domain.FromEUR(1_000),
			Reference: "SEPA-2026-000123",
		})
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(1_000), account.Balance)
		s.False(account.Frozen)

		supply, err := s.service.Supply(ctx)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(1_000), supply)
	})

	s.Run("only the issuer mints", func() {
		_, err := s.service.Mint(ctx, s.regulator, MintRequest{
			To: aliceAddr, Amount: domain.FromEUR(10), Reference: "SEPA-2026-000124",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("recipient below mint level is refused", func() {
		// Bob holds basic verification; minting requires standard.
		_, err := s.service.Mint(ctx, s.issuer, MintRequest{
			To: bobAddr, Amount: domain.FromEUR(10), Reference: "SEPA-2026-000125",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("mint requires a deposit reference", func() {
		_, err := s.service.Mint(ctx, s.issuer, MintRequest{
			To: aliceAddr, Amount: domain.FromEUR(10),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("issuance never exceeds proven reserves", func() {
		WithReserveGuard(closedReserve{})(s.service)
		defer WithReserveGuard(openReserve{})(s.service)

		_, err := s.service.Mint(ctx, s.issuer, MintRequest{
			To: aliceAddr, Amount: domain.FromEUR(10), Reference: "SEPA-2026-000126",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientReserve))
	})
}

func (s *TokenServiceSuite) TestTransfer() {
	ctx := context.Background()
	s.mint(aliceAddr, domain.FromEUR(5_000))
	alice := domain.NewActor(aliceAddr)

	s.Run("verified parties transfer", func() {
		err := s.service.Transfer(ctx, alice, TransferRequest{
			From: aliceAddr, To: bobAddr, Amount: domain.FromEUR(100),
		})
		s.Require().NoError(err)

		from, err := s.service.GetAccount(ctx, aliceAddr)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(4_900), from.Balance)
		to, err := s.service.GetAccount(ctx, bobAddr)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(100), to.Balance)
	})

	s.Run("only the owner moves funds", func() {
		err := s.service.Transfer(ctx, domain.NewActor(strangerAddr), TransferRequest{
			From: aliceAddr, To: bobAddr, Amount: domain.FromEUR(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unverified recipient is refused", func() {
		err := s.service.Transfer(ctx, alice, TransferRequest{
			From: aliceAddr, To: strangerAddr, Amount: domain.FromEUR(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("ceiling follows the sender level", func() {
		// Alice holds standard verification: the 50k ceiling applies even
		// though the policy maximum is higher.
		s.mint(aliceAddr, domain.FromEUR(60_000))
		err := s.service.Transfer(ctx, alice, TransferRequest{
			From: aliceAddr, To: bobAddr, Amount: domain.FromEUR(50_001),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeTransactionLimitExceeded))
	})

	s.Run("insufficient balance is refused", func() {
		// Bob holds 100 EUR from the first subtest, well under his ceiling.
		err := s.service.Transfer(ctx, domain.NewActor(bobAddr), TransferRequest{
			From: bobAddr, To: aliceAddr, Amount: domain.FromEUR(5_000),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})

	s.Run("frozen source account is refused", func() {
		s.Require().NoError(s.service.Freeze(ctx, s.freezer, aliceAddr, "BAFIN-2026-44"))
		err := s.service.Transfer(ctx, alice, TransferRequest{
			From: aliceAddr, To: bobAddr, Amount: domain.FromEUR(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeAccountFrozen))

		s.Require().NoError(s.service.Thaw(ctx, s.freezer, aliceAddr, "BAFIN-2026-44"))
		s.Require().NoError(s.service.Transfer(ctx, alice, TransferRequest{
			From: aliceAddr, To: bobAddr, Amount: domain.FromEUR(1),
		}))
	})

	s.Run("blacklisted recipient is refused", func() {
		_, err := s.blacklist.Add(ctx, s.regulator, blacklist.AddRequest{
			Address: bobAddr,
			Reason:  blacklist.ReasonRegulatoryOrder,
			Action:  blacklist.ActionBlockTransfers,
		})
		s.Require().NoError(err)

		err = s.service.Transfer(ctx, alice, TransferRequest{
			From: aliceAddr, To: bobAddr, Amount: domain.FromEUR(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBlacklisted))
	})
}

func (s *TokenServiceSuite) TestBurn() {
	ctx := context.Background()
	s.mint(aliceAddr, domain.FromEUR(1_000))

	s.Run("owner burns", func() {
		err := s.service.Burn(ctx, domain.NewActor(aliceAddr), aliceAddr, domain.FromEUR(400), "RED-1")
		s.Require().NoError(err)

		supply, err := s.service.Supply(ctx)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(600), supply)
	})

	s.Run("reserve manager burns on behalf", func() {
		manager := domain.NewActor("reserveManager12", domain.CapReserveManager)
		s.Require().NoError(s.service.Burn(ctx, manager, aliceAddr, domain.FromEUR(100), "RED-2"))
	})

	s.Run("strangers do not burn", func() {
		err := s.service.Burn(ctx, domain.NewActor(strangerAddr), aliceAddr, domain.FromEUR(1), "RED-3")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("burn beyond balance is refused", func() {
		err := s.service.Burn(ctx, domain.NewActor(aliceAddr), aliceAddr, domain.FromEUR(10_000), "RED-4")
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})
}

func (s *TokenServiceSuite) TestFreezeAndSeize() {
	ctx := context.Background()
	s.mint(aliceAddr, domain.FromEUR(2_000))

	s.Run("freeze is idempotent", func() {
		s.Require().NoError(s.service.Freeze(ctx, s.freezer, aliceAddr, "BAFIN-2026-44"))
		s.Require().NoError(s.service.Freeze(ctx, s.freezer, aliceAddr, "BAFIN-2026-44"))

		account, err := s.service.GetAccount(ctx, aliceAddr)
		s.Require().NoError(err)
		s.True(account.Frozen)
	})

	s.Run("only the freeze authority freezes", func() {
		err := s.service.Freeze(ctx, s.regulator, aliceAddr, "BAFIN-2026-45")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("seizure requires a case reference", func() {
		err := s.service.Seize(ctx, s.delegate, SeizeRequest{
			From: aliceAddr, To: forfeitAddr, Amount: domain.FromEUR(500),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("seizure works on a frozen account", func() {
		err := s.service.Seize(ctx, s.delegate, SeizeRequest{
			From:          aliceAddr,
			To:            forfeitAddr,
			Amount:        domain.FromEUR(500),
			CaseReference: "AG-Frankfurt-2026-771",
		})
		s.Require().NoError(err)

		from, err := s.service.GetAccount(ctx, aliceAddr)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(1_500), from.Balance)
		vault, err := s.service.GetAccount(ctx, forfeitAddr)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(500), vault.Balance)
		// Seizure moves value inside the ledger; supply is untouched.
		supply, err := s.service.Supply(ctx)
		s.Require().NoError(err)
		s.Equal(domain.FromEUR(2_000), supply)
	})

	s.Run("only the permanent delegate seizes", func() {
		err := s.service.Seize(ctx, s.freezer, SeizeRequest{
			From: aliceAddr, To: forfeitAddr, Amount: domain.FromEUR(1),
			CaseReference: "AG-Frankfurt-2026-772",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *TokenServiceSuite) TestPolicy() {
	ctx := context.Background()

	s.Run("double init is refused", func() {
		err := s.service.InitPolicy(ctx, s.registry, DefaultPolicy(issuerAddr, freezeAddr, delegateAddr))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("issuer updates the policy", func() {
		policy, err := s.service.GetPolicy(ctx)
		s.Require().NoError(err)
		policy.MinLevelTransfer = domain.LevelStandard
		s.Require().NoError(s.service.UpdatePolicy(ctx, s.issuer, policy))

		got, err := s.service.GetPolicy(ctx)
		s.Require().NoError(err)
		s.Equal(domain.LevelStandard, got.MinLevelTransfer)
	})

	s.Run("non-issuer updates are refused", func() {
		policy, err := s.service.GetPolicy(ctx)
		s.Require().NoError(err)
		err = s.service.UpdatePolicy(ctx, s.regulator, policy)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
