package clients

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

func newClientService(t *testing.T) Service {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:clients_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Client{}))
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc
}

func TestCreateAndGetClient(t *testing.T) {
	svc := newClientService(t)
	created, err := svc.CreateClient(context.Background(), CreateClientInput{
		Name:    "  Meera Jewels ",
		Company: "Meera Jewels Pvt Ltd",
		GSTIN:   "27abcde1234f1z5",
		Email:   "buyer@meera.example",
		City:    "Jaipur",
		State:   "Rajasthan",
	})
	require.NoError(t, err)
	assert.Equal(t, "Meera Jewels", created.Name)
	assert.Equal(t, "27ABCDE1234F1Z5", created.GSTIN)

	got, err := svc.GetClient(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jaipur", got.City)
}

func TestCreateClientValidates(t *testing.T) {
	svc := newClientService(t)
	_, err := svc.CreateClient(context.Background(), CreateClientInput{Name: " "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.CreateClient(context.Background(), CreateClientInput{Name: "A", Email: "not-an-email"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetClientNotFound(t *testing.T) {
	svc := newClientService(t)
	_, err := svc.GetClient(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListClientsSearchAndPaginate(t *testing.T) {
	svc := newClientService(t)
	for _, name := range []string{"Aster Gems", "Blue Lotus", "Aster Exports"} {
		_, err := svc.CreateClient(context.Background(), CreateClientInput{Name: name})
		require.NoError(t, err)
	}

	found, err := svc.ListClients(context.Background(), "aster", pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, found.Items, 2)

	page, err := svc.ListClients(context.Background(), "", pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListClients(context.Background(), "", pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
}

func TestRepositoryFindByIDs(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:clients_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Client{}))
	repo := NewRepository(conn)

	a := &models.Client{Name: "A"}
	b := &models.Client{Name: "B"}
	require.NoError(t, repo.Create(context.Background(), a))
	require.NoError(t, repo.Create(context.Background(), b))

	found, err := repo.FindByIDs(context.Background(), []uuid.UUID{a.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	empty, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
