package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"wisdomwalk/config"
	"wisdomwalk/pkg/cache"
	"wisdomwalk/pkg/consts"
	controllersLib "wisdomwalk/pkg/controllers"
	"wisdomwalk/pkg/middlewares"
	repoLib "wisdomwalk/pkg/repo"
	"wisdomwalk/pkg/repo/driver/db"
	"wisdomwalk/pkg/repo/driver/medium"
	"wisdomwalk/pkg/repo/memory"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities"
	"wisdomwalk/utilities/jwt"
)

// repos is the set of stores one storage driver provides.
type repos struct {
	health        repoLib.Imply
	users         repoLib.UserRepoImply
	conversations repoLib.ConversationRepoImply
	messages      repoLib.MessageRepoImply
	groups        repoLib.GroupRepoImply
	notifications repoLib.NotificationRepoImply
	close         func()
}

func initRepos(conf *config.WisdomWalkConfModel) (*repos, error) {
	log := utilities.NewLogger("initRepos")

	if conf.DB.Driver == consts.DriverMemory {
		log.Warn("Using the in-memory store, data is lost on restart")
		store := memory.NewStore()
		return &repos{
			health:        store,
			users:         store,
			conversations: store,
			messages:      store,
			groups:        store,
			notifications: store,
			close:         func() {},
		}, nil
	}

	log.Info("Initialising DB")
	session, err := db.NewCassandraSession(conf.DB)
	if err != nil {
		return nil, fmt.Errorf("unable to create cassandra session: %w", err)
	}

	return cassandraRepos(session, conf), nil
}

func cassandraRepos(session *gocql.Session, conf *config.WisdomWalkConfModel) *repos {
	return &repos{
		health:        repoLib.NewRepo(session, conf),
		users:         repoLib.NewUserRepo(session, conf),
		conversations: repoLib.NewConversationRepo(session, conf),
		messages:      repoLib.NewMessageRepo(session, conf),
		groups:        repoLib.NewGroupRepo(session, conf),
		notifications: repoLib.NewNotificationRepo(session, conf),
		close:         session.Close,
	}
}

// initMediums starts the optional delivery channels. A disabled or failing
// medium leaves its return value nil.
func initMediums(ctx context.Context, conf *config.WisdomWalkConfModel) (usecases.Pusher, usecases.Mailer) {
	log := utilities.NewLogger("initMediums")

	var pusher usecases.Pusher
	if conf.Firebase.Enabled {
		log.Info("Initialising firebase")
		fb, err := medium.NewFirebaseClient(ctx, conf.Firebase)
		if err != nil {
			log.WithError(err).Fatal("failed to initialise firebase")
		}
		pusher = fb
	}

	var mailer usecases.Mailer
	if conf.Email.Enabled {
		log.Info("Initialising Email")
		emailClient, err := medium.NewEmailClient(ctx, conf.Email)
		if err != nil {
			log.WithError(err).Fatal("unable to initialize email")
		}
		go emailClient.SpawnSender(ctx)
		mailer = emailClient
		log.Info("Initialising Email Complete")
	}

	return pusher, mailer
}

// initBroker relays room broadcasts through redis when more than one gateway
// instance serves clients.
func initBroker(ctx context.Context, conf *config.WisdomWalkConfModel, ws *medium.Socket) func() {
	if !conf.Redis.Enabled {
		return func() {}
	}

	log := utilities.NewLogger("initBroker")
	log.Info("Initialising redis room broker")

	broker, err := medium.NewRedisBroker(ctx, conf.Redis)
	if err != nil {
		log.WithError(err).Fatal("unable to initialize redis")
	}
	ws.SetPublisher(broker)
	go broker.Subscribe(ctx, ws)

	return func() {
		if err := broker.Close(); err != nil {
			log.WithError(err).Warn("failed to close redis broker")
		}
	}
}

func Run() {
	ctx, cancelFn := context.WithCancel(context.Background())

	// init the env config
	conf, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("unable to initialize environment variables %s", err.Error())
	}

	// Initialise the logger
	utilities.InitLogger(conf.LogLevel, conf.Mode)
	log := utilities.NewLogger("run")

	log.Info("Loading signing keys")
	if err := jwt.LoadKeyPair(conf.Auth.PrivateKeyPath, conf.Auth.PublicKeyPath, conf.Auth.Issuer); err != nil {
		log.WithError(err).Fatal("unable to load jwt key pair")
	}

	stores, err := initRepos(conf)
	if err != nil {
		log.WithError(err).Fatal("unable to initialise storage")
	}
	defer stores.close()

	log.Info("Initialising cache")
	users := cache.NewUserCache(stores.users, cache.DefaultExpiration)

	pusher, mailer := initMediums(ctx, conf)

	ws := medium.NewWebSocket(cast.ToDuration(conf.Gateway.PingInterval))
	closeBroker := initBroker(ctx, conf, ws)
	defer closeBroker()

	if conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// here initalizing the router
	router := initRouter(conf)
	api := router.Group(config.PathPrefix)

	{
		settings := usecases.ChatSettingsFromConfig(conf.Chat)

		// initializing usecases
		notificationUsecases := usecases.NewNotificationUsecases(
			stores.notifications, users, pusher, mailer, ws, conf.Email.NotifyTypes, conf.Chat.PageSize,
		)
		chatUseCases := usecases.NewChatUseCases(
			stores.conversations, stores.messages, stores.groups, users, notificationUsecases, settings,
		)
		groupUseCases := usecases.NewGroupUseCases(stores.groups, users, chatUseCases, notificationUsecases, ws, settings)
		userUseCases := usecases.NewUserUseCases(users)
		useCases := usecases.NewUseCases(stores.health, users)
		usecases.NewGatewayUseCases(chatUseCases, ws)

		log.Info("Initialising notification processor")
		go notificationUsecases.NotificationProcessor(ctx)

		// initializing middleware
		m := middlewares.NewMiddlewares(useCases)

		// initializing controllersLib and the routes
		controllersLib.NewController(api, useCases, m).InitRoutes()
		controllersLib.NewChatController(api, chatUseCases, m).InitRoutes()
		controllersLib.NewGroupController(api, groupUseCases, m).InitRoutes()
		controllersLib.NewNotificationController(api, notificationUsecases, m).InitRoutes()
		controllersLib.NewUserController(api, userUseCases, m).InitRoutes()
		controllersLib.NewGatewayController(
			api, ws, m, conf.Gateway.ReadBuffer, conf.Gateway.WriteBuffer,
		).InitRoutes()
	}

	// run the app
	launch(cancelFn, router, conf.Server.Port)
}

func initRouter(conf *config.WisdomWalkConfModel) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if conf.LogLevel == "debug" {
		router.Use(gin.Logger())
	}

	router.Use(
		cors.New(
			cors.Config{
				AllowOrigins: conf.Server.AllowedOrigins,
				AllowMethods: []string{"PUT", "PATCH", "POST", "DELETE", "GET", "OPTIONS"},
				AllowHeaders: []string{
					"Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", "accept",
					"origin", "Cache-Control", "HOST",
				},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			},
		),
	)

	if conf.Mode == consts.ModeStage || conf.Mode == consts.ModeLocal {
		router.GET("/debug/pprof/*profile", gin.WrapF(pprof.Index))
	}

	// websocket upgrades cannot pass through the gzip writer
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/ws/`})))

	return router
}

// launch serves until SIGINT or SIGTERM, then stops the background workers
// and shuts the server down.
func launch(cancelFn context.CancelFunc, router *gin.Engine, port int) {
	log := utilities.NewLogger("launch")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		// service connections
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	log.Infof("Server listening on %d", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown Server ...")
	cancelFn()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server Shutdown")
	}
	log.Info("Server exiting")
}
