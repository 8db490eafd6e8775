// Package mongotask provides a MongoDB work provider and the handlers that
// run against it.
//
// A Session wraps one *mongo.Client together with the read and write concern
// applied to commands. Every engine worker shares the Session, so concern
// changes made by one task are seen by commands run afterwards on any worker.
//
// # Usage
//
//	cfg, err := mongotask.ConfigFromEnv()
//	if err != nil {
//		log.Fatal(err)
//	}
//	session, err := mongotask.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Disconnect(context.Background())
//
//	reg := handler.NewRegistry[*mongotask.Session]()
//	if err := mongotask.Register(reg); err != nil {
//		log.Fatal(err)
//	}
//
//	engCfg := engine.DefaultConfig()
//	engCfg.RequiredTypes = mongotask.Types()
//	eng, err := engine.New(engCfg, session, reg)
//
// # Configuration
//
// Config is read from MONGODB_URL and the other MONGODB_* variables, the
// same names used elsewhere for MongoDB connection settings.
package mongotask
