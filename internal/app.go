package internal

import (
	ctlAdmin "github.com/zerohop/go-whatsapp-campaign-gateway/internal/admin"
	ctlCampaign "github.com/zerohop/go-whatsapp-campaign-gateway/internal/campaign"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	ctlInbound "github.com/zerohop/go-whatsapp-campaign-gateway/internal/inbound"
	ctlInstance "github.com/zerohop/go-whatsapp-campaign-gateway/internal/instance"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/storage"
	ctlStream "github.com/zerohop/go-whatsapp-campaign-gateway/internal/stream"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/webhook"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
)

// App wires the durable store, the gateway client and the event pipeline.
// Both the relay and the broadcaster consume the same bus; publishers never
// block on either.
type App struct {
	Store       *storage.Store
	Client      *cloudapi.Client
	Sessions    *cloudapi.SessionCache
	Bus         *events.Bus
	Dispatcher  *ctlCampaign.Dispatcher
	Relay       *webhook.Relay
	Broadcaster *ctlStream.Broadcaster

	adminCtl    *ctlAdmin.Controller
	instanceCtl *ctlInstance.Controller
	campaignCtl *ctlCampaign.Controller
	inboundCtl  *ctlInbound.Controller
	streamCtl   *ctlStream.Controller
}

func NewApp() (*App, error) {
	store, err := storage.Open()
	if err != nil {
		return nil, err
	}

	client := cloudapi.NewClient()
	sessions := cloudapi.NewSessionCache()
	bus := events.NewBus()

	relay := webhook.NewRelay(store)
	broadcaster := ctlStream.NewBroadcaster()
	bus.Subscribe(relay.Dispatch)
	bus.Subscribe(broadcaster.Dispatch)

	dispatcher := ctlCampaign.NewDispatcher(store, client, bus)
	normalizer := ctlInbound.NewNormalizer(store, client, sessions, bus)

	return &App{
		Store:       store,
		Client:      client,
		Sessions:    sessions,
		Bus:         bus,
		Dispatcher:  dispatcher,
		Relay:       relay,
		Broadcaster: broadcaster,

		adminCtl:    ctlAdmin.NewController(store),
		instanceCtl: ctlInstance.NewController(store, client, sessions, bus),
		campaignCtl: ctlCampaign.NewController(store, dispatcher),
		inboundCtl:  ctlInbound.NewController(normalizer),
		streamCtl:   ctlStream.NewController(store, broadcaster),
	}, nil
}

func (a *App) Shutdown() {
	a.Relay.Shutdown()
	_ = a.Store.Close()
}
